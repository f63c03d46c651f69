/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Game errors, reported only to the connection whose request failed.
// None of these terminate the room or other connections.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNicknameInUse   = errors.New("nickname already in use")
	ErrInvalidNickname = errors.New("nickname must be 1-30 printable characters")
	ErrGameInProgress  = errors.New("game already started, cannot join now")
	ErrForbidden       = errors.New("only the admin can do that")
	ErrInvalidState    = errors.New("action not allowed in the current game state")
	ErrAlreadyChosen   = errors.New("number already chosen for this round")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNothingToFinish = errors.New("no numbers have been submitted yet")
	ErrUnknownPlayer   = errors.New("player not found in room")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
