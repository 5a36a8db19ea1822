// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package panel connects the bus to the rest of the driver: it applies
// inbound frames to the screen and state, answers polls, and decides when
// a PDA remote should appear to be asleep.
package panel

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/jandy"
	"github.com/Thermoquad/aquastat/pkg/navigator"
	"github.com/Thermoquad/aquastat/pkg/projector"
	"github.com/Thermoquad/aquastat/pkg/screen"
	"github.com/Thermoquad/aquastat/pkg/session"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// IDLE_SLEEP is how long after the last operation a PDA remote may sleep
const IDLE_SLEEP = 30 * time.Second

// HandlerOptions configure a Handler
type HandlerOptions struct {
	Mode navigator.Mode

	// SleepMode lets the PDA remote go quiet when nothing needs it
	SleepMode bool
	IdleSleep time.Duration

	// ReadAuxLabels queues a label read after the first PDA init
	ReadAuxLabels bool
}

// Handler applies frames addressed to us
type Handler struct {
	scr  *screen.Screen
	st   *state.State
	proj *projector.Projector
	eng  *navigator.Engine
	sup  *session.Supervisor
	opts HandlerOptions

	mu         sync.Mutex
	firstProbe bool
	initDone   bool

	log logrus.FieldLogger
}

// NewHandler creates a packet handler
func NewHandler(scr *screen.Screen, st *state.State, proj *projector.Projector, eng *navigator.Engine, sup *session.Supervisor, opts HandlerOptions, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.IdleSleep <= 0 {
		opts.IdleSleep = IDLE_SLEEP
	}
	return &Handler{
		scr:  scr,
		st:   st,
		proj: proj,
		eng:  eng,
		sup:  sup,
		opts: opts,
		log:  log.WithField("component", "handler"),
	}
}

// Handle dispatches one frame. It must return quickly since the reply to
// the poll follows it.
func (h *Handler) Handle(p *jandy.Packet) {
	h.st.NotePacket(p.Command())

	if h.opts.Mode == navigator.MODE_PDA {
		h.handlePDA(p)
	} else {
		h.handleKeypad(p)
	}
}

func (h *Handler) handleKeypad(p *jandy.Packet) {
	switch p.Command() {
	case jandy.CMD_PROBE:
		h.noteProbe()
	case jandy.CMD_STATUS:
		h.proj.OnKeypadStatus(p.Data())
		h.scr.NoteStatus()
	case jandy.CMD_MSG, jandy.CMD_MSG_LONG:
		text := p.Text(1)
		h.scr.ApplyMessage(text)
		h.proj.OnKeypadMessage(text)
	case jandy.CMD_MSG_LOOP_ST:
		h.log.WithFields(logrus.Fields{}).Trace("Message loop start")
	}
}

func (h *Handler) handlePDA(p *jandy.Packet) {
	switch p.Command() {
	case jandy.CMD_PROBE:
		h.noteProbe()

	case jandy.CMD_ACK:
		h.mu.Lock()
		start := !h.initDone
		h.initDone = true
		h.mu.Unlock()
		if start {
			h.log.Debug("Running PDA init")
			h.submit(navigator.Request{Kind: session.KIND_PDA_INIT})
		}

	case jandy.CMD_STATUS:
		h.proj.OnStatus()
		h.scr.NoteStatus()

	case jandy.CMD_PDA_CLEAR:
		h.scr.ApplyClear()

	case jandy.CMD_MSG_LONG:
		lineID := p.DataByte(0)
		text := p.Text(1)
		if int(lineID) < jandy.SCREEN_LINES {
			h.scr.ApplyLineUpdate(int(lineID), text)
		}
		h.proj.OnLine(lineID, text)

	case jandy.CMD_PDA_HIGHLIGHT:
		h.scr.ApplyHighlight(int(p.DataByte(0)))

	case jandy.CMD_PDA_HIGHLIGHTCHARS:
		h.scr.ApplyHighlightChars(int(p.DataByte(0)), int(p.DataByte(1)), int(p.DataByte(2)))

	case jandy.CMD_PDA_SHIFTLINES:
		if len(p.Data()) >= 3 {
			h.scr.ApplyShift(int(int8(p.DataByte(0))), int(int8(p.DataByte(1))), int(int8(p.DataByte(2))))
		} else {
			h.scr.ApplyLegacyShift()
		}

	case jandy.CMD_PDA_0x1B:
		// The panel sends this twice at startup, 0x00 then 0x01
		if p.DataByte(0) != 0x00 {
			return
		}
		h.mu.Lock()
		first := !h.initDone
		h.initDone = true
		h.mu.Unlock()
		var reqs []navigator.Request
		if first {
			h.log.Info("PDA init")
			reqs = append(reqs, navigator.Request{Kind: session.KIND_PDA_INIT})
			if h.opts.ReadAuxLabels {
				reqs = append(reqs, navigator.Request{Kind: session.KIND_GET_AUX_LABELS})
			}
		} else {
			h.log.Debug("PDA wake init")
		}
		h.submit(append(reqs, navigator.Request{Kind: session.KIND_PDA_WAKE_INIT})...)
	}
}

func (h *Handler) noteProbe() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.firstProbe {
		h.firstProbe = true
		h.log.Info("First probe received")
	}
}

// submit runs startup operations in order without blocking the poll reply
func (h *Handler) submit(reqs ...navigator.Request) {
	go func() {
		for _, req := range reqs {
			if err := h.eng.Do(context.Background(), req); err != nil {
				h.log.WithError(err).WithField("op", req.Kind).Warn("Startup operation failed")
			}
		}
	}()
}

// ShouldSleep reports whether the PDA remote should stay silent. Silence
// until the first probe keeps a restarted driver from answering mid-cycle.
func (h *Handler) ShouldSleep() bool {
	h.mu.Lock()
	probed := h.firstProbe
	h.mu.Unlock()

	switch {
	case !probed:
		return true
	case !h.opts.SleepMode:
		return false
	case h.sup.Active():
		return false
	case h.st.OpenViewers() > 0:
		return false
	}
	return h.sup.IdleFor() > h.opts.IdleSleep
}

// Initialized reports whether the PDA init has been queued
func (h *Handler) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initDone
}
