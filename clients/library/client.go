package dfslib

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/exp/rand"

	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

func NewClient(serverAddr string, transport Transport) *Client {
	return &Client{
		ServerAddr: serverAddr,
		Transport:  transport,
		OpenFiles:  make(map[string]*OpenFile),
	}
}

// Open claims path in mode and returns its current content.
func (c *Client) Open(ctx context.Context, path string, mode protocol.Mode) (string, error) {
	resp, err := c.do(ctx, "open", protocol.Request{Command: protocol.CmdOpen, Path: path, Mode: string(mode)})
	if err != nil {
		return "", err
	}
	c.TableMu.Lock()
	c.OpenFiles[tableKey(path)] = &OpenFile{Path: path, Mode: mode}
	c.TableMu.Unlock()
	return resp.Content(), nil
}

// Read returns the server's cached content of an open path, including
// writes not yet flushed.
func (c *Client) Read(ctx context.Context, path string) (string, error) {
	resp, err := c.do(ctx, "read", protocol.Request{Command: protocol.CmdRead, Path: path})
	if err != nil {
		return "", err
	}
	return resp.Content(), nil
}

// Write replaces the cached content of an open path. Nothing is persisted
// until Close.
func (c *Client) Write(ctx context.Context, path string, content string) error {
	_, err := c.do(ctx, "write", protocol.Request{Command: protocol.CmdWrite, Path: path, Content: content})
	return err
}

// Close releases the claim. For write-capable modes content becomes the
// file's final content and is persisted before Close returns.
func (c *Client) Close(ctx context.Context, path string, mode protocol.Mode, content string) error {
	_, err := c.do(ctx, "close", protocol.Request{Command: protocol.CmdClose, Path: path, Mode: string(mode), Content: content})
	if err != nil {
		return err
	}
	c.TableMu.Lock()
	delete(c.OpenFiles, tableKey(path))
	c.TableMu.Unlock()
	return nil
}

// OpenWithRetry retries Open while the file is locked by someone else,
// backing off with jitter between attempts.
func (c *Client) OpenWithRetry(ctx context.Context, path string, mode protocol.Mode, attempts int, baseDelay time.Duration) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		var content string
		content, err = c.Open(ctx, path, mode)
		if err == nil || !IsCode(err, protocol.CodeFileAlreadyLocked) {
			return content, err
		}
		if i == attempts-1 {
			break
		}

		delay := backoff(baseDelay, i)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("open %q: %w", path, ctx.Err())
		case <-time.After(delay):
		}
	}
	return "", err
}

const maxBackoff = 2 * time.Second

// backoff doubles base per attempt, capped at maxBackoff, and adds up to half
// of it again as jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := min(base<<min(attempt, 16), maxBackoff)
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

// Opened lists the claims this client holds, sorted by path.
func (c *Client) Opened() []OpenFile {
	c.TableMu.RLock()
	defer c.TableMu.RUnlock()
	out := make([]OpenFile, 0, len(c.OpenFiles))
	for _, f := range c.OpenFiles {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Disconnect drops the connection. The server releases every claim and
// discards content that was written but never closed.
func (c *Client) Disconnect() error {
	c.TableMu.Lock()
	c.OpenFiles = make(map[string]*OpenFile)
	t := c.Transport
	c.Transport = nil
	c.TableMu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}

func (c *Client) do(ctx context.Context, op string, req protocol.Request) (protocol.Response, error) {
	c.TableMu.RLock()
	t := c.Transport
	c.TableMu.RUnlock()
	if t == nil {
		return protocol.Response{}, ErrClientClosed
	}

	resp, err := t.RoundTrip(ctx, req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%s %q: %w", op, req.Path, err)
	}
	if code, isErr := resp.Code(); isErr {
		return resp, &ResponseError{Op: op, Path: req.Path, Code: code}
	}
	return resp, nil
}

// tableKey folds the spellings the server treats as one path.
func tableKey(path string) string {
	if clean, err := protocol.CleanPath(path); err == nil {
		return clean
	}
	return path
}
