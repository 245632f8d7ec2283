package mailing

import (
	"context"
	"sync"
)

// fakeRemote is an in-memory Brevo account.
type fakeRemote struct {
	mu        sync.Mutex
	seq       int64
	contacts  map[string]int64
	lists     map[int64]map[int64]bool
	folders   []Folder
	creates   int
	listNames []string
	sent      []Email
	sendErr   error
	createErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		contacts: map[string]int64{},
		lists:    map[int64]map[int64]bool{},
		folders:  []Folder{{ID: 1, Name: "Default"}},
	}
}

func (f *fakeRemote) GetContact(_ context.Context, email string) (*Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.contacts[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &Contact{ID: id, Email: email}, nil
}

func (f *fakeRemote) CreateContact(_ context.Context, email string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	if _, ok := f.contacts[email]; ok {
		return 0, &APIError{Status: 400, Code: "duplicate_parameter"}
	}
	f.seq++
	f.creates++
	f.contacts[email] = f.seq
	return f.seq, nil
}

func (f *fakeRemote) DeleteContact(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, cid := range f.contacts {
		if cid == id {
			delete(f.contacts, email)
			for _, members := range f.lists {
				delete(members, id)
			}
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRemote) AddToList(_ context.Context, listID int64, ids ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.lists[listID]
	if !ok {
		members = map[int64]bool{}
		f.lists[listID] = members
	}
	for _, id := range ids {
		members[id] = true
	}
	return nil
}

func (f *fakeRemote) RemoveFromList(_ context.Context, listID int64, ids ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.lists[listID], id)
	}
	return nil
}

func (f *fakeRemote) ListFolders(_ context.Context, limit, offset int) ([]Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= len(f.folders) {
		return nil, nil
	}
	end := min(offset+limit, len(f.folders))
	return f.folders[offset:end], nil
}

func (f *fakeRemote) CreateList(_ context.Context, name string, _ int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.lists[f.seq] = map[int64]bool{}
	f.listNames = append(f.listNames, name)
	return f.seq, nil
}

func (f *fakeRemote) DeleteList(_ context.Context, listID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[listID]; !ok {
		return ErrNotFound
	}
	delete(f.lists, listID)
	return nil
}

func (f *fakeRemote) SendEmail(_ context.Context, msg Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeRemote) member(listID, contactID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists[listID][contactID]
}
