/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Request-level validation failures. Surfaced to the offending connection
// only, via the "error" event; they never reach the room broadcast and
// never leave partially applied state behind.
var (
	errRoomNotFound       = errors.New("room not found")
	errRoomFull           = errors.New("room is full (4/4 players)")
	errNotYourTurn        = errors.New("not your turn")
	errNoPendingRoll      = errors.New("roll the dice first")
	errRollAlreadyPending = errors.New("a roll is already pending; move a token first")
	errInvalidToken       = errors.New("invalid token index")
	errIllegalMove        = errors.New("illegal move")
	errGameFinished       = errors.New("the game is already finished")
	errGameNotStarted     = errors.New("the game has not started")
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
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
