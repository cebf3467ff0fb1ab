/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Seednode/yellowcar/games/yellowcar"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	cfg.logger().Info(fmt.Sprintf(format, args...))
}

// statusFor maps a game error onto the HTTP status sent back for it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, yellowcar.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, yellowcar.ErrTooFast):
		return http.StatusTooManyRequests
	case errors.Is(err, yellowcar.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, yellowcar.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the short machine-readable name clients see for err.
func errorCode(err error) string {
	switch statusFor(err) {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "too_fast"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadRequest:
		return "invalid"
	default:
		return "internal"
	}
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
