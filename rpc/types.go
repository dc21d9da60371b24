// Package rpc defines JSON-RPC 2.0 wire format types for WebSocket
// communication. These types represent the params and result structures
// for all RPC methods and notifications.
package rpc

import (
	"github.com/wgthomas/webview4claude/command"
	"github.com/wgthomas/webview4claude/session"
)

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
}

type AuthResult struct {
	Version string `json:"version"`
	Title   string `json:"title"`
}

// Session management

type SessionCreateParams struct {
	Name    string `json:"name"`
	WorkDir string `json:"work_dir"`
	Model   string `json:"model,omitempty"`
}

type SessionListResult struct {
	Sessions []session.Summary `json:"sessions"`
}

type SessionUpdateParams struct {
	SessionID string  `json:"session_id"`
	Name      *string `json:"name,omitempty"`
	Model     *string `json:"model,omitempty"`
}

type SessionDeleteParams struct {
	SessionID string `json:"session_id"`
}

type SessionDeleteResult struct {
	Deleted bool `json:"deleted"`
}

// Chat

type MessageParams struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

type InterruptParams struct {
	SessionID string `json:"session_id"`
}

type InterruptResult struct {
	Interrupted bool `json:"interrupted"`
}

type ChatSubscribeParams struct {
	SessionID string `json:"session_id"`
}

type ChatSubscribeResult struct {
	ID      string            `json:"id"`
	History []session.Message `json:"history"`
	Running bool              `json:"running"`
}

// Notification params for chat.* events pushed to subscribers.
type ChatEventParams struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Filesystem watching

type FSSubscribeParams struct {
	Path string `json:"path"`
}

type FSSubscribeResult struct {
	ID string `json:"id"`
}

type FSChangedParams struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Commands

type CommandListResult struct {
	Commands []command.Command `json:"commands"`
}

// Shared

type UnsubscribeParams struct {
	ID string `json:"id"`
}
