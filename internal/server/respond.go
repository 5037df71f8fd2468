package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "request body is not valid JSON")
}

type messageBody struct {
	Message string `json:"message"`
}

type syncSuccess struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	UndoAvailable bool   `json:"undoAvailable"`
	Warning       string `json:"warning,omitempty"`
}

type conflictBody struct {
	Error   apperrors.Kind `json:"error"`
	Message string         `json:"message"`
}

type partialBody struct {
	Success   bool             `json:"success"`
	Partial   bool             `json:"partial"`
	Error     apperrors.Kind   `json:"error"`
	Message   string           `json:"message"`
	Operation models.Operation `json:"operation"`
}

type failureBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type undoSuccess struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Operation models.Operation `json:"operation"`
}

// failureResponse maps a failed outcome to its status and body.
func failureResponse(out *models.Outcome) (int, interface{}) {
	switch out.Kind {
	case apperrors.KindMergeConflict, apperrors.KindNonFastForward, apperrors.KindOperationInProgress:
		return http.StatusConflict, conflictBody{Error: out.Kind, Message: out.Message}
	case apperrors.KindAuthFailure:
		return http.StatusUnauthorized, conflictBody{Error: out.Kind, Message: out.Message}
	case apperrors.KindStashApplyFailed:
		return http.StatusConflict, partialBody{
			Partial:   true,
			Error:     out.Kind,
			Message:   out.Message,
			Operation: out.Operation,
		}
	default:
		return http.StatusBadRequest, failureBody{Message: out.Message, Details: out.Details}
	}
}

func writeSyncOutcome(w http.ResponseWriter, out *models.Outcome, undoAvailable bool) {
	if out.Success {
		writeJSON(w, http.StatusOK, syncSuccess{
			Success:       true,
			Message:       out.Message,
			UndoAvailable: undoAvailable,
			Warning:       out.Warning,
		})
		return
	}
	status, body := failureResponse(out)
	writeJSON(w, status, body)
}

func writeUndoOutcome(w http.ResponseWriter, out *models.Outcome) {
	if out.Success {
		writeJSON(w, http.StatusOK, undoSuccess{Success: true, Message: out.Message, Operation: out.Operation})
		return
	}
	status, body := failureResponse(out)
	writeJSON(w, status, body)
}

// statusFor maps an infrastructure error to an HTTP status.
func statusFor(err error) int {
	if apperrors.KindOf(err) == apperrors.KindOperationInProgress {
		return http.StatusConflict
	}
	if apperrors.KindOf(err) == apperrors.KindAuthFailure {
		return http.StatusBadRequest
	}
	switch apperrors.GetErrorCode(err) {
	case apperrors.ErrCodeValidationFailed,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeConfigInvalid,
		apperrors.ErrCodeSnapshotUnavailable,
		apperrors.ErrCodeTokenMissing:
		return http.StatusBadRequest
	case apperrors.ErrCodeOAuthStateInvalid:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), messageBody{Message: errorMessage(err)})
}

func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Cause != nil && appErr.Code != apperrors.ErrCodeSnapshotUnavailable {
			return appErr.Message + ": " + rootMessage(appErr.Cause)
		}
		return appErr.Message
	}
	return err.Error()
}

func rootMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
