package source

import (
	"bytes"
	"io"
	"io/fs"
)

// Memory is an in-memory package. Payloads are streamed in the order their
// files were added.
type Memory struct {
	entries  []Entry
	payloads []memPayload
	pos      int
	cur      *bytes.Reader
	nextID   uint32
}

type memPayload struct {
	id   uint32
	data []byte
}

func NewMemory() *Memory {
	return &Memory{pos: -1}
}

// Add appends a raw entry. For regular files a non-nil data slice is queued
// as the payload for e.ID; a nil slice leaves the file without payload.
func (m *Memory) Add(e Entry, data []byte) *Memory {
	m.entries = append(m.entries, e)
	if !e.Mode.IsRegular() {
		return m
	}
	if data != nil {
		m.payloads = append(m.payloads, memPayload{id: e.ID, data: data})
	}
	if e.ID >= m.nextID {
		m.nextID = e.ID + 1
	}
	return m
}

func (m *Memory) AddDir(path string, perm fs.FileMode, uid, gid uint32) *Memory {
	return m.Add(Entry{Path: path, Mode: fs.ModeDir | perm.Perm(), UID: uid, GID: gid}, nil)
}

// AddFile adds a regular file with the next free id and data as its payload.
func (m *Memory) AddFile(path string, perm fs.FileMode, uid, gid uint32, data []byte) *Memory {
	if data == nil {
		data = []byte{}
	}
	return m.Add(Entry{
		Path: path,
		Mode: perm.Perm(),
		UID:  uid,
		GID:  gid,
		Size: uint64(len(data)),
		ID:   m.nextID,
	}, data)
}

func (m *Memory) AddSymlink(path, target string, uid, gid uint32) *Memory {
	return m.Add(Entry{Path: path, Mode: fs.ModeSymlink | 0o777, Target: target, UID: uid, GID: gid}, nil)
}

// AddDevice adds a block device, or a character device when mode carries
// fs.ModeCharDevice.
func (m *Memory) AddDevice(path string, mode fs.FileMode, major, minor, uid, gid uint32) *Memory {
	mode = fs.ModeDevice | mode&(fs.ModeCharDevice|fs.ModePerm)
	return m.Add(Entry{Path: path, Mode: mode, Major: major, Minor: minor, UID: uid, GID: gid}, nil)
}

func (m *Memory) Entries() ([]Entry, error) {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *Memory) Rewind() error {
	m.pos = -1
	m.cur = nil
	return nil
}

func (m *Memory) Next() (uint32, error) {
	if m.pos+1 >= len(m.payloads) {
		m.pos = len(m.payloads)
		m.cur = nil
		return 0, io.EOF
	}
	m.pos++
	p := m.payloads[m.pos]
	m.cur = bytes.NewReader(p.data)
	return p.id, nil
}

func (m *Memory) Read(p []byte) (int, error) {
	if m.cur == nil {
		return 0, ErrNoPayload
	}
	return m.cur.Read(p)
}

func (m *Memory) Close() error { return nil }
