package tautan

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"golang.org/x/sync/singleflight"
)

// requestDeduper coalesces identical in-flight GETs. Every caller receives its
// own copy of the shared result. The shared fetch keeps the first caller's
// context values but not its cancellation; each caller stops waiting when its
// own context ends.
type requestDeduper struct {
	group singleflight.Group
}

type dedupResult struct {
	env     *Envelope
	err     *APIError
	status  int
	retries int
}

func newRequestDeduper() *requestDeduper {
	return &requestDeduper{}
}

// dedupKey hashes method, URL and caller headers.
func dedupKey(req *requestAttempt) string {
	h := fnv.New64a()
	h.Write([]byte(req.method))
	h.Write([]byte{0})
	h.Write([]byte(req.url))

	keys := make([]string, 0, len(req.header))
	for k := range req.header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		for _, v := range req.header[k] {
			h.Write([]byte{1})
			h.Write([]byte(v))
		}
	}

	return fmt.Sprintf("%x", h.Sum64())
}

func (d *requestDeduper) do(ctx context.Context, req *requestAttempt, fetch func(context.Context, *requestAttempt) (*Envelope, *APIError)) (*Envelope, bool, *APIError) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(dedupKey(req), func() (interface{}, error) {
		shared := *req
		env, apiErr := fetch(fetchCtx, &shared)
		return dedupResult{env: env, err: apiErr, status: shared.status, retries: shared.retries}, nil
	})

	select {
	case res := <-ch:
		r := res.Val.(dedupResult)
		req.status = r.status
		req.retries = r.retries
		if !res.Shared {
			return r.env, false, r.err
		}
		var apiErr *APIError
		if r.err != nil {
			cp := *r.err
			apiErr = &cp
		}
		return r.env.Clone(), true, apiErr
	case <-ctx.Done():
		return nil, false, ClassifyTransport(ctx.Err())
	}
}
