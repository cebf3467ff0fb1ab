/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Seednode/yellowcar/games/yellowcar"
	"github.com/julienschmidt/httprouter"
)

type createGameRequest struct {
	Names []string `json:"names"`
}

type pointRequest struct {
	PlayerID string `json:"player_id"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any, errs chan<- error) {
	data, err := json.Marshal(v)
	if err != nil {
		errs <- err

		http.Error(w, "encoding failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		errs <- err
	}
}

func writeError(cfg *Config, w http.ResponseWriter, err error, errs chan<- error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		errs <- err
	}

	writeJSON(cfg, w, status, apiError{Error: errorCode(err), Message: err.Error()}, errs)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return yellowcar.ErrInvalid
	}
	return nil
}

func serveCreateGame(cfg *Config, svc *yellowcar.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createGameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(cfg, w, err, errs)
			return
		}

		game, err := svc.Ledger.CreateGame(r.Context(), req.Names)
		if err != nil {
			writeError(cfg, w, err, errs)
			return
		}

		logf(cfg, "GAMES: Created game %s with %d players via API", game.ID, len(game.Players))

		writeJSON(cfg, w, http.StatusCreated, game, errs)
	}
}

func serveGameSnapshot(cfg *Config, svc *yellowcar.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		snap, err := svc.Snapshot(r.Context(), ps.ByName("gameid"))
		if err != nil {
			writeError(cfg, w, err, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, newSnapshotMessage(snap), errs)

		logf(cfg, "SERVE: Snapshot of %s to %s in %s",
			snap.Game.ID,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveAddPoint(cfg *Config, svc *yellowcar.Service, gm *GameManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req pointRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(cfg, w, err, errs)
			return
		}

		gameID := ps.ByName("gameid")
		profileID := getOrSetProfileID(w, r)

		res, err := svc.AddPoint(r.Context(), gameID, req.PlayerID, profileID)
		if err != nil {
			writeError(cfg, w, err, errs)
			return
		}

		gm.touch(gameID, profileID)

		writeJSON(cfg, w, http.StatusCreated, res, errs)
	}
}

func serveStats(cfg *Config, svc *yellowcar.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		profileID := getOrSetProfileID(w, r)

		summary, err := svc.Stats.Summary(r.Context(), profileID)
		if err != nil {
			writeError(cfg, w, err, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, summary, errs)
	}
}

func serveClearStats(cfg *Config, svc *yellowcar.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		c, err := r.Cookie(profileCookieName)
		if err != nil || c.Value == "" {
			w.WriteHeader(http.StatusNoContent)

			return
		}
		profileID := c.Value

		if err := svc.Stats.Clear(r.Context(), profileID); err != nil {
			writeError(cfg, w, err, errs)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func registerAPI(cfg *Config, path string, svc *yellowcar.Service, gm *GameManager, mux *httprouter.Router, errs chan<- error) {
	mux.POST(cfg.prefix+path+"/game", serveCreateGame(cfg, svc, errs))

	mux.GET(cfg.prefix+path+"/game/:gameid", serveGameSnapshot(cfg, svc, errs))

	mux.POST(cfg.prefix+path+"/game/:gameid/points", serveAddPoint(cfg, svc, gm, errs))

	mux.GET(cfg.prefix+path+"/stats", serveStats(cfg, svc, errs))

	mux.DELETE(cfg.prefix+path+"/stats", serveClearStats(cfg, svc, errs))
}
