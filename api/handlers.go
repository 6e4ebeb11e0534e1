/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"context"
	"net/http"

	"github.com/melodydashora/RepEditor/autofix"
)

type planResponse struct {
	OK bool `json:"ok"`
	*autofix.PlanResponse
}

type applyResponse struct {
	OK bool `json:"ok"`
	*autofix.ApplyResponse
}

// detach keeps an operation running to completion when the client goes
// away, so a push is never abandoned between stages.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func credentialsOf(r *http.Request) autofix.Credentials {
	return autofix.Credentials{Token: tokenFrom(r.Context())}
}

func (s *Server) plan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[autofix.PlanRequest](w, r, s.maxBody)
	if !ok {
		return
	}
	req.Credentials = credentialsOf(r)
	resp, err := s.pipeline.Plan(detach(r), req)
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, planResponse{OK: true, PlanResponse: resp})
}

func (s *Server) diff(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[autofix.DiffRequest](w, r, s.maxBody)
	if !ok {
		return
	}
	req.Credentials = credentialsOf(r)
	resp, err := s.pipeline.Diff(detach(r), req)
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}
	w.Header().Set("X-RepEditor-Base", resp.Base)
	if resp.Branch != "" {
		w.Header().Set("X-RepEditor-Branch", resp.Branch)
		w.Header().Set("X-RepEditor-Commit", resp.Commit)
	}
	writeText(r.Context(), w, resp.Diff)
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[autofix.ApplyRequest](w, r, s.maxBody)
	if !ok {
		return
	}
	req.Credentials = credentialsOf(r)
	resp, err := s.pipeline.Apply(detach(r), req)
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, applyResponse{OK: true, ApplyResponse: resp})
}

func (s *Server) autofix(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[autofix.AutofixRequest](w, r, s.maxBody)
	if !ok {
		return
	}
	req.Credentials = credentialsOf(r)
	resp, err := s.pipeline.Autofix(detach(r), req)
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, applyResponse{OK: true, ApplyResponse: resp})
}

func (s *Server) tree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.pipeline.Tree(r.Context(), autofix.TreeRequest{
		Credentials: credentialsOf(r),
		Repo:        q.Get("repo"),
		Branch:      q.Get("branch"),
	})
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	content, err := s.pipeline.File(r.Context(), autofix.FileRequest{
		Credentials: credentialsOf(r),
		Repo:        q.Get("repo"),
		Branch:      q.Get("branch"),
		Path:        q.Get("path"),
	})
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}
	writeText(r.Context(), w, content)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[autofix.ChatRequest](w, r, s.maxBody)
	if !ok {
		return
	}
	req.Credentials = credentialsOf(r)
	resp, err := s.pipeline.Chat(r.Context(), req)
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}
