package http

import (
	"errors"
	"log/slog"
	"net/http"

	"duit/internal/core"
	"duit/internal/docstore"
	"duit/internal/services"
)

// handleMe returns the signed-in user's record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, uid string) {
	user, err := s.directory.GetUser(r.Context(), uid)
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "sign in again")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Load current user failed", "error", err, "uid", uid)
		writeError(w, http.StatusInternalServerError, "could not load user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": user})
}

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request, uid string) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	family, res, err := s.directory.CreateFamily(r.Context(), uid, req.Name)
	if err != nil {
		slog.ErrorContext(r.Context(), "Create family failed", "error", err, "uid", uid)
		writeError(w, http.StatusInternalServerError, "could not create family")
		return
	}
	writeResult(w, res, family)
}

func (s *Server) handleGetFamily(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	family, err := s.directory.GetFamily(r.Context(), familyID)
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Keluarga tidak ditemukan")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Get family failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not load family")
		return
	}
	if _, ok := family.Members[uid]; !ok {
		writeError(w, http.StatusForbidden, "Anda bukan anggota keluarga ini")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": family})
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")

	if list, ok := s.memberCache.Get(familyID); ok {
		if containsMember(list, uid) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": list})
			return
		}
	}

	family, err := s.directory.GetFamily(r.Context(), familyID)
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Keluarga tidak ditemukan")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Get family failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not load family")
		return
	}
	if _, ok := family.Members[uid]; !ok {
		writeError(w, http.StatusForbidden, "Anda bukan anggota keluarga ini")
		return
	}

	list, err := s.directory.ListMembers(r.Context(), familyID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List members failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not list members")
		return
	}
	s.memberCache.Set(familyID, list)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": list})
}

func (s *Server) handleInviteMember(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = string(core.RoleMember)
	}

	res, err := s.directory.InviteMember(r.Context(), familyID, uid, req.Email, core.Role(req.Role))
	if err != nil {
		slog.ErrorContext(r.Context(), "Invite member failed", "error", err, "family_id", familyID, "email", req.Email)
		writeError(w, http.StatusInternalServerError, "could not invite member")
		return
	}
	if res.Success {
		s.memberCache.Delete(familyID)
	}
	writeResult(w, res, nil)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	memberUID := r.PathValue("uid")
	var req struct {
		Role string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.directory.ChangeRole(r.Context(), familyID, uid, memberUID, core.Role(req.Role))
	if err != nil {
		slog.ErrorContext(r.Context(), "Change role failed", "error", err, "family_id", familyID, "member_uid", memberUID)
		writeError(w, http.StatusInternalServerError, "could not change role")
		return
	}
	if res.Success {
		s.memberCache.Delete(familyID)
	}
	writeResult(w, res, nil)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	memberUID := r.PathValue("uid")

	res, err := s.directory.RemoveMember(r.Context(), familyID, uid, memberUID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Remove member failed", "error", err, "family_id", familyID, "member_uid", memberUID)
		writeError(w, http.StatusInternalServerError, "could not remove member")
		return
	}
	if res.Success {
		s.memberCache.Delete(familyID)
	}
	writeResult(w, res, nil)
}

func containsMember(list services.MemberList, uid string) bool {
	for _, m := range list.Members {
		if m.UID == uid {
			return true
		}
	}
	return false
}
