package images

import (
	"os"
	"path/filepath"
	"strings"
)

// Avatar thumbnails fill AvatarWidth x AvatarHeight cells.
const (
	AvatarWidth  = 2
	AvatarHeight = 1
)

// Avatars finds the profile-<id> and contact-<id> pictures signal-cli stores
// and decodes them through a Pipeline. Like the pipeline it must be used from
// a single goroutine.
type Avatars struct {
	dir   string
	pipe  *Pipeline
	paths map[string]string
}

// NewAvatars looks for pictures in dir.
func NewAvatars(dir string, pipe *Pipeline) *Avatars {
	return &Avatars{dir: dir, pipe: pipe, paths: make(map[string]string)}
}

// Path returns the picture of the first identifier that has one, or "".
// A profile picture wins over a contact picture. Lookups, misses included,
// are cached until Forget.
func (a *Avatars) Path(ids ...string) string {
	for _, id := range ids {
		if id == "" || strings.ContainsAny(id, `/\`) {
			continue
		}
		p, ok := a.paths[id]
		if !ok {
			p = a.find(id)
			a.paths[id] = p
		}
		if p != "" {
			return p
		}
	}
	return ""
}

func (a *Avatars) find(id string) string {
	for _, prefix := range []string{"profile-", "contact-"} {
		p := filepath.Join(a.dir, prefix+id)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// Get returns the thumbnail for the first identifier with a picture and
// queues its decode on first use.
func (a *Avatars) Get(ids ...string) (Entry, bool) {
	p := a.Path(ids...)
	if p == "" {
		return Entry{}, false
	}
	a.pipe.RequestSized(p, AvatarWidth, AvatarHeight)
	return a.pipe.Get(p)
}

// Poll installs finished decodes; see Pipeline.Poll.
func (a *Avatars) Poll() int {
	return a.pipe.Poll()
}

// Ready is the pipeline's result signal.
func (a *Avatars) Ready() <-chan struct{} {
	return a.pipe.Ready()
}

// Forget drops cached lookups so pictures synced since are found.
func (a *Avatars) Forget() {
	clear(a.paths)
}
