package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/simonsays/command"
	"github.com/onnwee/simonsays/db"
	"github.com/onnwee/simonsays/telemetry"
)

type configView struct {
	Aliases         []string `json:"aliases"`
	Enabled         bool     `json:"enabled"`
	CooldownSeconds float64  `json:"cooldown_seconds"`
	Chance          int      `json:"chance"`
	Forced          bool     `json:"forced"`
}

func viewOf(cfg command.Config) configView {
	return configView{
		Aliases:         cfg.Aliases,
		Enabled:         cfg.Enabled,
		CooldownSeconds: cfg.Cooldown.Seconds(),
		Chance:          cfg.Chance,
		Forced:          cfg.Forced,
	}
}

// HandleCommands lists the registered tags with their aliases.
func (h *Handlers) HandleCommands(w http.ResponseWriter, r *http.Request) {
	store := h.store()
	out := make(map[string][]string)
	for _, tag := range h.opts.Registry.Tags() {
		if cfg, ok := store.Get(tag); ok {
			out[tag] = cfg.Aliases
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleConfig returns the global switch and every command's config.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	store := h.store()
	snap := store.Snapshot()
	cmds := make(map[string]configView, len(snap))
	for tag, cfg := range snap {
		cmds[tag] = viewOf(cfg)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  store.Enabled(),
		"commands": cmds,
	})
}

// HandleCommandUpdate changes one command. Absent parameters keep their
// current value.
//
//	POST /commands/{tag}?enabled=false&cooldown=5&chance=50&forced=true&aliases=jump,hop
func (h *Handlers) HandleCommandUpdate(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	enabled, err := optionalBool(r, "enabled")
	if err != nil {
		http.Error(w, "invalid enabled", http.StatusBadRequest)
		return
	}
	forced, err := optionalBool(r, "forced")
	if err != nil {
		http.Error(w, "invalid forced", http.StatusBadRequest)
		return
	}
	chance, err := optionalInt(r, "chance")
	if err != nil {
		http.Error(w, "invalid chance", http.StatusBadRequest)
		return
	}
	cooldown, err := optionalDuration(r, "cooldown")
	if err != nil {
		http.Error(w, "invalid cooldown", http.StatusBadRequest)
		return
	}
	var aliases []string
	if v := r.URL.Query().Get("aliases"); v != "" {
		for _, a := range strings.Split(v, ",") {
			aliases = append(aliases, strings.TrimSpace(a))
		}
	}

	store := h.store()
	err = store.Update(tag, func(cfg *command.Config) {
		if enabled != nil {
			cfg.Enabled = *enabled
		}
		if forced != nil {
			cfg.Forced = *forced
		}
		if chance != nil {
			cfg.Chance = *chance
		}
		if cooldown != nil {
			cfg.Cooldown = *cooldown
		}
		if aliases != nil {
			cfg.Aliases = aliases
		}
	})
	switch {
	case errors.Is(err, command.ErrUnknownTag):
		http.Error(w, "unknown command", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg, _ := store.Get(tag)
	telemetry.LoggerWithCorr(r.Context()).Info("command config updated",
		slog.String("tag", tag),
		slog.Bool("enabled", cfg.Enabled),
		slog.Duration("cooldown", cfg.Cooldown),
		slog.Int("chance", cfg.Chance),
		slog.Bool("forced", cfg.Forced),
		slog.String("component", "http"))
	writeJSON(w, http.StatusOK, viewOf(cfg))
}

// HandleEnabled flips the global command switch: POST /enabled?value=false.
func (h *Handlers) HandleEnabled(w http.ResponseWriter, r *http.Request) {
	v, err := optionalBool(r, "value")
	if err != nil || v == nil {
		http.Error(w, "value must be true or false", http.StatusBadRequest)
		return
	}
	h.store().SetEnabled(*v)
	telemetry.SetCommandsEnabled(*v)
	telemetry.LoggerWithCorr(r.Context()).Info("commands globally toggled", slog.Bool("enabled", *v), slog.String("component", "http"))
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *v})
}

// HandleCooldownReset clears every command's cooldown.
func (h *Handlers) HandleCooldownReset(w http.ResponseWriter, r *http.Request) {
	h.opts.Registry.ClearCooldowns()
	w.WriteHeader(http.StatusNoContent)
}

// HandleConfigSave writes the live config back to the commands file.
func (h *Handlers) HandleConfigSave(w http.ResponseWriter, r *http.Request) {
	if h.opts.CommandsFile == "" {
		http.Error(w, "COMMANDS_FILE not configured", http.StatusConflict)
		return
	}
	if err := command.SaveStore(h.opts.CommandsFile, h.store()); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("save commands file", slog.Any("err", err), slog.String("path", h.opts.CommandsFile), slog.String("component", "http"))
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"saved": h.opts.CommandsFile})
}

// HandleHistory returns recent runs, newest first: GET /history?tag=spin&limit=20.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.opts.History == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}
	tag := r.URL.Query().Get("tag")
	limit := parseIntQuery(r, "limit", 100)
	runs, err := db.RecentRuns(r.Context(), h.opts.History, tag, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("query history", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}
