package server

import (
	"errors"
	"net/http"

	"tally.dev/internal/log"
	"tally.dev/internal/timer"
)

var GetTimerState = RpcMethod[struct{}, timer.State]{
	Name:             "get_timer_state",
	SkipInputParsing: true,
	Run: func(req RpcRequest[struct{}]) (timer.State, *HttpError) {
		return req.Server.timer.State(), nil
	},
}

type StartTimerInput struct {
	Title string `json:"title"`
}

var StartTimer = RpcMethod[StartTimerInput, timer.State]{
	Name: "start_timer",
	Run: func(req RpcRequest[StartTimerInput]) (timer.State, *HttpError) {
		err := req.Server.timer.Start(req.Data.Title)
		switch {
		case errors.Is(err, timer.ErrEmptyTitle):
			return timer.State{}, Errorf(http.StatusBadRequest, "%s", err)
		case errors.Is(err, timer.ErrAlreadyRunning):
			return timer.State{}, Errorf(http.StatusConflict, "%s", err)
		case err != nil:
			return timer.State{}, Errorf(http.StatusInternalServerError, "failed to start timer: %s", err)
		}

		state := req.Server.timer.State()
		req.Server.emit(EventTimerStarted, state)

		return state, nil
	},
}

var StopTimer = RpcMethod[struct{}, struct{}]{
	Name:             "stop_timer",
	SkipInputParsing: true,
	Run: func(req RpcRequest[struct{}]) (struct{}, *HttpError) {
		if session, stopped := req.Server.timer.Stop(); stopped {
			// The session is over either way, a failed save shouldn't fail the stop
			if err := req.Server.history.Insert(session); err != nil {
				logger.Err(err, "Failed to save timer session", log.Ctx{
					"title": session.Title,
				})
			}

			req.Server.emit(EventTimerStopped, session)
		}

		return struct{}{}, nil
	},
}

type GetTimerHistoryInput struct {
	// Limit is the most sessions to return, 0 returns all of them
	Limit int `json:"limit"`
}

var GetTimerHistory = RpcMethod[GetTimerHistoryInput, []timer.Session]{
	Name: "get_timer_history",
	Run: func(req RpcRequest[GetTimerHistoryInput]) ([]timer.Session, *HttpError) {
		if req.Data.Limit < 0 {
			return nil, Errorf(http.StatusBadRequest, "invalid limit: %d", req.Data.Limit)
		}

		return req.Server.history.Latest(req.Data.Limit), nil
	},
}
