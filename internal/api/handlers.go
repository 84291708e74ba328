package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/service"
)

// Wire DTOs. The store speaks snake_case for top-level fields, the responses
// camelCase; both shapes live here and nowhere else.

type policyholderDTO struct {
	Name         string `json:"name"`
	PolicyNumber string `json:"policyNumber"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
}

type vehicleDTO struct {
	Make string `json:"make"`
	// Brand is a historical synonym for Make still sent by older clients;
	// it is folded into Make here and never stored.
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	LicensePlate string `json:"licensePlate"`
	VIN          string `json:"vin"`
}

type createRequest struct {
	IncidentDate      string           `json:"incident_date"`
	DamageDescription string           `json:"damage_description"`
	Policyholder      *policyholderDTO `json:"policyholder" validate:"omitempty"`
	Vehicle           *vehicleDTO      `json:"vehicle"`
	Extra             json.RawMessage  `json:"extra"`
	// Status is decoded so older clients don't break, then ignored:
	// creation always yields a draft.
	Status string `json:"status"`
}

type patchDTO struct {
	Status            *string          `json:"status"`
	IncidentDate      *string          `json:"incident_date"`
	DamageDescription *string          `json:"damage_description"`
	Policyholder      *policyholderDTO `json:"policyholder" validate:"omitempty"`
	Vehicle           *vehicleDTO      `json:"vehicle"`
	Extra             json.RawMessage  `json:"extra"`
}

type updateRequest struct {
	ID        string    `json:"id" validate:"required"`
	EditToken string    `json:"editToken" validate:"required"`
	Patch     *patchDTO `json:"patch" validate:"required"`
}

type updateResponse struct {
	ID        string            `json:"id"`
	PublicID  string            `json:"publicId"`
	Status    model.ClaimStatus `json:"status"`
	UpdatedAt string            `json:"updatedAt"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	// An empty body is a valid (fully blank) draft, matching the wizard's
	// save-early behavior; only malformed JSON is rejected.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", "create_bad_json")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), "create_invalid_fields")
		return
	}
	res, err := s.svc.Create(r.Context(), service.CreateInput{
		IncidentDate:      req.IncidentDate,
		DamageDescription: req.DamageDescription,
		Policyholder:      toPolicyholder(req.Policyholder),
		Vehicle:           toVehicle(req.Vehicle),
		Extra:             req.Extra,
	})
	if err != nil {
		s.respondServiceError(w, err, "create_insert_failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	publicID := r.URL.Query().Get("publicId")
	if publicID == "" {
		respondError(w, http.StatusBadRequest, "missing publicId", "get_missing_public_id")
		return
	}
	claim, files, err := s.svc.Get(r.Context(), publicID)
	if err != nil {
		s.respondServiceError(w, err, "get_query_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"report": claim,
		"files":  files,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ClaimFilter{Limit: 100, Offset: 0}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := q.Get("status"); v != "" {
		status := model.ClaimStatus(v)
		filter.Status = &status
	}
	claims, total, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, err, "list_query_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"reports": claims,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "update_bad_json")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "missing required fields", "update_missing_fields")
		return
	}
	claim, err := s.svc.Update(r.Context(), req.ID, req.EditToken, toPatch(req.Patch))
	if err != nil {
		s.respondServiceError(w, err, "update_failed")
		return
	}
	respondJSON(w, http.StatusOK, updateResponse{
		ID:        claim.ID,
		PublicID:  claim.PublicID,
		Status:    claim.Status,
		UpdatedAt: claim.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/") {
		respondError(w, http.StatusUnsupportedMediaType, "expecting multipart form", "upload_not_multipart")
		return
	}
	// The extra MiB covers the non-file form fields and multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes()+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondServiceError(w, service.ErrTooLarge, "upload_too_large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid multipart form", "upload_bad_form")
		return
	}
	id := r.FormValue("id")
	editToken := r.FormValue("editToken")
	file, header, err := r.FormFile("file")
	if id == "" || editToken == "" || err != nil {
		respondError(w, http.StatusBadRequest, "missing id, editToken or file", "upload_missing_fields")
		return
	}
	defer file.Close()

	res, err := s.svc.Upload(r.Context(), service.UploadInput{
		ClaimID:   id,
		EditToken: editToken,
		Filename:  header.Filename,
		MIME:      header.Header.Get("Content-Type"),
		Size:      header.Size,
		Content:   file,
	})
	if err != nil {
		s.respondServiceError(w, err, "upload_failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondError(w, http.StatusBadRequest, "missing path", "file_url_missing_path")
		return
	}
	url, err := s.svc.FileURL(r.Context(), path)
	if err != nil {
		s.respondServiceError(w, err, "file_url_sign_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func toPolicyholder(dto *policyholderDTO) *model.Policyholder {
	if dto == nil {
		return nil
	}
	return &model.Policyholder{
		Name:         dto.Name,
		PolicyNumber: dto.PolicyNumber,
		Email:        dto.Email,
		Phone:        dto.Phone,
	}
}

func toVehicle(dto *vehicleDTO) *model.Vehicle {
	if dto == nil {
		return nil
	}
	makeName := dto.Make
	if makeName == "" {
		makeName = dto.Brand
	}
	return &model.Vehicle{
		Make:         makeName,
		Model:        dto.Model,
		LicensePlate: dto.LicensePlate,
		VIN:          dto.VIN,
	}
}

func toPatch(dto *patchDTO) model.ClaimPatch {
	patch := model.ClaimPatch{
		IncidentDate:      dto.IncidentDate,
		DamageDescription: dto.DamageDescription,
		Policyholder:      toPolicyholder(dto.Policyholder),
		Vehicle:           toVehicle(dto.Vehicle),
		Extra:             dto.Extra,
	}
	if dto.Status != nil {
		status := model.ClaimStatus(*dto.Status)
		patch.Status = &status
	}
	return patch
}
