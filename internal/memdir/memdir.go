// Package memdir is a minimal in-memory stand-in for the ACL/auth
// subsystem and directory namespace the remote-file server defers to.
// The real directory, symbolic-link resolution, and ACL format live
// outside this module's scope; memdir exists so a standalone node can
// actually answer remote-file requests without them.
package memdir

import (
	"sync"

	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/remfile"
	"github.com/aegisos/kernel/internal/status"
)

type entry struct {
	children map[string]ktypes.UID
	attrs    []byte
	acl      []byte
	prot     uint32
	length   uint64
	typ      uint32
}

// Store implements remfile.Collaborators over a process-local map
// keyed by UID; it is not persisted and has no locking finer than a
// single mutex, which is adequate for a demo node, not a production
// one.
type Store struct {
	mu      sync.Mutex
	objects map[ktypes.UID]*entry
}

func New() *Store {
	return &Store{objects: make(map[ktypes.UID]*entry)}
}

// Root ensures uid names a directory entry, creating an empty one if
// this is the first reference. Used to seed a store before serving.
func (s *Store) Root(uid ktypes.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(uid)
}

func (s *Store) ensure(uid ktypes.UID) *entry {
	e, ok := s.objects[uid]
	if !ok {
		e = &entry{children: make(map[string]ktypes.UID)}
		s.objects[uid] = e
	}
	return e
}

func (s *Store) Exists(uid ktypes.UID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[uid]
	return ok
}

func (s *Store) SetACL(uid ktypes.UID, acl []byte) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[uid]
	if !ok {
		return status.FileNotFound
	}
	e.acl = append([]byte(nil), acl...)
	return status.OK
}

func (s *Store) SetProt(uid ktypes.UID, mode uint32, _ remfile.SIDSet) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[uid]
	if !ok {
		return status.FileNotFound
	}
	e.prot = mode
	return status.OK
}

func (s *Store) SetAttrib(uid ktypes.UID, attrs []byte, _ remfile.SIDSet) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[uid]
	if !ok {
		return status.FileNotFound
	}
	e.attrs = append([]byte(nil), attrs...)
	return status.OK
}

func (s *Store) GetEntry(dir ktypes.UID, name string, _ *remfile.SIDSet) (ktypes.UID, bool, status.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.objects[dir]
	if !ok {
		return ktypes.UID{}, false, status.FileNotFound
	}
	uid, ok := d.children[name]
	return uid, ok, status.OK
}

func (s *Store) AddLink(dir ktypes.UID, name string, target ktypes.UID, _ bool) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.objects[dir]
	if !ok {
		return status.FileNotFound
	}
	if _, exists := d.children[name]; exists {
		return status.BitAlreadyFree
	}
	d.children[name] = target
	s.ensure(target)
	return status.OK
}

func (s *Store) DropLink(dir ktypes.UID, name string, _ bool) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.objects[dir]
	if !ok {
		return status.FileNotFound
	}
	if _, exists := d.children[name]; !exists {
		return status.NameNotFound
	}
	delete(d.children, name)
	return status.OK
}

func (s *Store) TruncateDelete(uid ktypes.UID, newLen uint64) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[uid]
	if !ok {
		return status.FileNotFound
	}
	e.length = newLen
	return status.OK
}

func (s *Store) CreateTyped(dir ktypes.UID, name string, typ uint32) (ktypes.UID, status.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.objects[dir]
	if !ok {
		return ktypes.UID{}, status.FileNotFound
	}
	if _, exists := d.children[name]; exists {
		return ktypes.UID{}, status.BitAlreadyFree
	}
	uid := ktypes.UID{High: uint32(len(s.objects) + 1), Low: uint32(typ)}
	d.children[name] = uid
	s.objects[uid] = &entry{children: make(map[string]ktypes.UID), typ: typ}
	return uid, status.OK
}

func (s *Store) Purify(uid ktypes.UID) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[uid]; !ok {
		return status.FileNotFound
	}
	return status.OK
}

func (s *Store) CreateArea(owner ktypes.UID, size uint64) (ktypes.UID, status.Code) {
	return s.CreateTyped(owner, "__area", 0)
}

func (s *Store) DeleteArea(area ktypes.UID) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[area]; !ok {
		return status.FileNotFound
	}
	delete(s.objects, area)
	return status.OK
}

func (s *Store) GrowArea(area ktypes.UID, extra uint64) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[area]
	if !ok {
		return status.FileNotFound
	}
	e.length += extra
	return status.OK
}

var _ remfile.Collaborators = (*Store)(nil)
