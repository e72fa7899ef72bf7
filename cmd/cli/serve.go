package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mariozechner/coding-agent/chat/pkg/server"
	"github.com/mariozechner/coding-agent/chat/pkg/session"
)

// runServer serves sess over HTTP until the process is interrupted.
func runServer(ctx context.Context, addr string, sess *session.Session) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(sess).Start(ctx, addr)
}
