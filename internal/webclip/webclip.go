/*
LICENSE
  Copyright (C) 2026 the Clipforge authors

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Package webclip serves the web surface: a short-alias redirector plus a
// byte-range clip file server, with a time-limited signed-link mode (HS256
// claims tokens) for sharing a clip beyond the chat platform itself.
package webclip

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/clipforge/clipforge/internal/durable"
	"github.com/clipforge/clipforge/internal/logctx"
)

// aliasLength is the six-digit alias width.
const aliasLength = 6

// Config configures one webclip Server.
type Config struct {
	ClipDir     string
	FaviconPath string // optional; empty means favicon requests always 404.
	LinkSecret  []byte // HMAC key for time-limited link tokens; nil disables SignLink/the /link route.
}

// Server serves the clips mount.
type Server struct {
	cfg       Config
	redirects durable.TableStore
	app       *fiber.App
	log       *logctx.Logger
}

// New constructs a Server. redirects should be the store's
// durable.TableRedirects table.
func New(cfg Config, redirects durable.TableStore) *Server {
	s := &Server{cfg: cfg, redirects: redirects, log: logctx.New("webclip", "")}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/favicon.ico", s.faviconHandler)
	app.Get("/clips/:name", s.clipHandler)
	app.Get("/link/:token", s.linkHandler)
	s.app = app
	return s
}

// Listen starts serving on addr, blocking until the server is shut down.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error { return s.app.Shutdown() }

// NewAlias mints a fresh six-digit alias for target (a path relative to
// ClipDir) and persists it, retrying on collision. Aliases are random,
// not sequential, so a chat user can't enumerate other clips.
func (s *Server) NewAlias(ctx context.Context, target string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		alias, err := randomDigits(aliasLength)
		if err != nil {
			return "", fmt.Errorf("webclip: generating alias: %w", err)
		}
		if _, err := s.redirects.Get(ctx, durable.Key{alias}); err == nil {
			continue // collision, try again.
		}
		if err := s.redirects.Put(ctx, durable.Key{alias}, []byte(target)); err != nil {
			return "", fmt.Errorf("webclip: persisting alias: %w", err)
		}
		return alias, nil
	}
	return "", errors.New("webclip: could not allocate a unique alias after 5 attempts")
}

// SignLink returns a token good for ttl that, served at /link/<token>,
// serves the file at path (relative to ClipDir) directly. This is the
// "time-limited clip link" supplement: unlike a redirect alias, it expires
// and never needs a store row removed.
func (s *Server) SignLink(path string, ttl time.Duration) (string, error) {
	if s.cfg.LinkSecret == nil {
		return "", errors.New("webclip: no link secret configured")
	}
	claims := jwt.MapClaims{
		"path": path,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokString, err := tok.SignedString(s.cfg.LinkSecret)
	if err != nil {
		return "", fmt.Errorf("webclip: signing link: %w", err)
	}
	return tokString, nil
}

func (s *Server) faviconHandler(c *fiber.Ctx) error {
	if s.cfg.FaviconPath == "" {
		return fiber.ErrNotFound
	}
	return c.SendFile(s.cfg.FaviconPath)
}

// clipHandler implements the alias-or-file dispatch: if name is
// a known redirect alias, 302 to the real path; otherwise serve name
// directly out of ClipDir with byte-range support (SendFile delegates to
// fasthttp's file server, which handles Range/Accept-Ranges and MIME type
// by extension on its own).
func (s *Server) clipHandler(c *fiber.Ctx) error {
	name := c.Params("name")
	if !safeName(name) {
		return fiber.ErrNotFound
	}

	if target, ok := s.resolveAlias(c.Context(), name); ok {
		return c.Redirect("/clips/"+target, fiber.StatusFound)
	}

	path := filepath.Join(s.cfg.ClipDir, name)
	if !within(s.cfg.ClipDir, path) {
		return fiber.ErrNotFound
	}
	if err := c.SendFile(path); err != nil {
		return fiber.ErrNotFound
	}
	return nil
}

func (s *Server) linkHandler(c *fiber.Ctx) error {
	if s.cfg.LinkSecret == nil {
		return fiber.ErrNotFound
	}
	tokString := c.Params("token")
	tok, err := jwt.Parse(tokString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.cfg.LinkSecret, nil
	})
	if err != nil || !tok.Valid {
		return fiber.ErrNotFound
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return fiber.ErrNotFound
	}
	rel, ok := claims["path"].(string)
	if !ok || !safeName(rel) {
		return fiber.ErrNotFound
	}

	path := filepath.Join(s.cfg.ClipDir, rel)
	if !within(s.cfg.ClipDir, path) {
		return fiber.ErrNotFound
	}
	if err := c.SendFile(path); err != nil {
		return fiber.ErrNotFound
	}
	return nil
}

func (s *Server) resolveAlias(ctx context.Context, name string) (string, bool) {
	v, err := s.redirects.Get(ctx, durable.Key{name})
	if err != nil {
		return "", false
	}
	return string(v), true
}

// safeName rejects path traversal and directory separators; aliases and
// clip file names are both expected to be bare names.
func safeName(name string) bool {
	return name != "" && !strings.Contains(name, "..") && !strings.ContainsAny(name, "/\\")
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	return err == nil && !strings.HasPrefix(rel, "..")
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}
