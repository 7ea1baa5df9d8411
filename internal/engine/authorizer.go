package engine

// Authorizer is the capability the caller consults before letting a user
// ingest documents. Authentication itself happens outside the core.
type Authorizer interface {
	CanUpload(user string) bool
}

// AllowList authorizes uploads from a fixed set of users. An empty list
// means every caller may upload.
type AllowList struct {
	users map[string]struct{}
}

func NewAllowList(users []string) *AllowList {
	set := make(map[string]struct{}, len(users))
	for _, u := range users {
		set[u] = struct{}{}
	}
	return &AllowList{users: set}
}

func (a *AllowList) CanUpload(user string) bool {
	if len(a.users) == 0 {
		return true
	}
	_, ok := a.users[user]
	return ok
}
