package app

import (
	"maps"
	"slices"

	"github.com/encodeous/dronet/state"
	"github.com/google/uuid"
)

// ContentId is the stable id a server of the given kind publishes a named file under
func ContentId(kind state.NodeRole, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("dronet://"+kind.String()+"/"+name)).String()
}

// catalog is the immutable file table of a content server
type catalog struct {
	ids   []string
	files map[string][]byte
}

func newCatalog(kind state.NodeRole, files map[string]string) *catalog {
	c := &catalog{files: make(map[string][]byte, len(files))}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		id := ContentId(kind, name)
		c.files[id] = []byte(files[name])
	}
	c.ids = slices.Sorted(maps.Keys(c.files))
	return c
}

func (c *catalog) list() []string {
	return slices.Clone(c.ids)
}

func (c *catalog) get(id string) ([]byte, bool) {
	data, ok := c.files[id]
	return data, ok
}
