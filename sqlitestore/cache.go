package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bool64/ctxd"
	"github.com/vearutop/swcache"
)

// Cache is a handle of a single generation.
type Cache struct {
	s    *Storage
	name string
}

// Name returns generation name.
func (c *Cache) Name() string {
	return c.name
}

// Match returns stored response.
func (c *Cache) Match(ctx context.Context, key string) (*swcache.Response, error) {
	var (
		status          sql.NullInt64
		typ, url, hdr   sql.NullString
		body            []byte
		generationFound string
	)

	err := c.s.db.QueryRowContext(ctx,
		`SELECT g.name, e.status, e.type, e.url, e.header, e.body
		 FROM generations g
		 LEFT JOIN entries e ON e.generation = g.name AND e.key = ?
		 WHERE g.name = ?`,
		key, c.name,
	).Scan(&generationFound, &status, &typ, &url, &hdr, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, swcache.ErrStorageClosed
	}

	if err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to read cache entry", "name", c.name, "key", key)
	}

	if !status.Valid {
		c.s.log.Debug(ctx, "cache miss", "name", c.name, "key", key)
		c.s.stat.Add(ctx, swcache.MetricMiss, 1, "name", c.name)

		return nil, swcache.ErrNotFound
	}

	resp := &swcache.Response{
		Status: int(status.Int64),
		Type:   swcache.ResponseType(typ.String),
		URL:    url.String,
		Body:   body,
	}

	if err := json.Unmarshal([]byte(hdr.String), &resp.Header); err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to decode headers", "name", c.name, "key", key)
	}

	c.s.stat.Add(ctx, swcache.MetricHit, 1, "name", c.name)

	return resp, nil
}

// Put stores response.
func (c *Cache) Put(ctx context.Context, key string, resp *swcache.Response) error {
	if !strings.HasPrefix(key, http.MethodGet+" ") {
		return swcache.ErrNotGET
	}

	hdr := resp.Header
	if hdr == nil {
		hdr = http.Header{}
	}

	h, err := json.Marshal(hdr)
	if err != nil {
		return err
	}

	body := resp.Body
	if body == nil {
		body = []byte{}
	}

	res, err := c.s.db.ExecContext(ctx,
		`INSERT INTO entries (generation, key, status, type, url, header, body, written_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM generations WHERE name = ?)
		 ON CONFLICT (generation, key) DO UPDATE SET
		     status = excluded.status,
		     type = excluded.type,
		     url = excluded.url,
		     header = excluded.header,
		     body = excluded.body,
		     written_at = excluded.written_at`,
		c.name, key, resp.Status, string(resp.Type), resp.URL, string(h), body, c.s.now().UnixMilli(),
		c.name,
	)
	if err != nil {
		return ctxd.WrapError(ctx, err, "failed to write cache entry", "name", c.name, "key", key)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return swcache.ErrStorageClosed
	}

	c.s.log.Debug(ctx, "wrote to cache", "name", c.name, "key", key, "status", resp.Status, "size", len(resp.Body))
	c.s.stat.Add(ctx, swcache.MetricWrite, 1, "name", c.name)

	return nil
}

// Delete removes entry.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	res, err := c.s.db.ExecContext(ctx, `DELETE FROM entries WHERE generation = ? AND key = ?`, c.name, key)
	if err != nil {
		return false, ctxd.WrapError(ctx, err, "failed to delete cache entry", "name", c.name, "key", key)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Keys returns sorted request keys.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	ok, err := c.s.Has(ctx, c.name)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, swcache.ErrStorageClosed
	}

	rows, err := c.s.db.QueryContext(ctx, `SELECT key FROM entries WHERE generation = ? ORDER BY key`, c.name)
	if err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to list cache entries", "name", c.name)
	}
	defer rows.Close()

	keys := make([]string, 0)

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}

		keys = append(keys, k)
	}

	return keys, rows.Err()
}
