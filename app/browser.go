package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
	"github.com/jellydator/ttlcache/v3"
)

// Document is a text file together with every media file it embeds
type Document struct {
	Id   string
	Text []byte
	Refs []protocol.MediaRef
	// Media holds the contents of each ref, keyed by media id
	Media map[string][]byte
}

// FetchFile fetches a text file along with its media references
func (c *Client) FetchFile(ctx context.Context, dst state.NodeId, id string) ([]byte, []protocol.MediaRef, error) {
	res, err := c.request(ctx, dst, protocol.FileQuery(id), protocol.TypeFile)
	if err != nil {
		return nil, nil, err
	}
	if res.Size != uint64(len(res.Data)) {
		return nil, nil, fmt.Errorf("%w: file %s is %d bytes, announced %d", ErrUnexpectedResponse, id, len(res.Data), res.Size)
	}
	return res.Data, res.Refs, nil
}

// FetchDocument fetches a text file from dst and every media file it references from the
// server hosting it. Documents and media are cached, so a media file shared between documents
// is only transferred once.
func (c *Client) FetchDocument(ctx context.Context, dst state.NodeId, id string) (*Document, error) {
	key := protocol.MediaRef{Location: dst, Id: id}
	if item := c.docs.Get(key); item != nil {
		return item.Value(), nil
	}
	text, refs, err := c.FetchFile(ctx, dst, id)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Id:    id,
		Text:  text,
		Refs:  refs,
		Media: make(map[string][]byte, len(refs)),
	}
	for _, ref := range refs {
		if item := c.media.Get(ref); item != nil {
			doc.Media[ref.Id] = item.Value()
			continue
		}
		data, err := c.Media(ctx, ref.Location, ref.Id)
		if err != nil {
			return nil, fmt.Errorf("document %s embeds %s: %w", id, ref, err)
		}
		c.media.Set(ref, data, ttlcache.DefaultTTL)
		doc.Media[ref.Id] = data
	}
	c.docs.Set(key, doc, ttlcache.DefaultTTL)
	return doc, nil
}

// CachedDocuments lists the documents that can be served without touching the network
func (c *Client) CachedDocuments() []protocol.MediaRef {
	c.docs.DeleteExpired()
	keys := c.docs.Keys()
	slices.SortFunc(keys, func(a, b protocol.MediaRef) int {
		return cmp.Or(cmp.Compare(a.Location, b.Location), strings.Compare(a.Id, b.Id))
	})
	return keys
}
