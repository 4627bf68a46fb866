package handlers

import (
	"encoding/json"
	"net/http"

	"projectdash/auth"
	"projectdash/db"
	"projectdash/i18n"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func sendJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func getAPISession(r *http.Request) (auth.APISession, bool) {
	token := r.Header.Get("X-API-Token")
	if token == "" {
		return auth.APISession{}, false
	}
	return auth.GetAPISession(token)
}

func APILoginHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	if r.Method != http.MethodPost {
		sendJSONResponse(w, http.StatusMethodNotAllowed, APIResponse{Status: "error", Message: i18n.T(lang, "MethodNotAllowed")})
		return
	}

	ip := getClientIP(r)
	if !loginLimiter.Allow(ip) {
		sendJSONResponse(w, http.StatusTooManyRequests, APIResponse{Status: "error", Message: i18n.T(lang, "TooManyAttempts")})
		return
	}

	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	ok, err := db.Authenticate(input.Email, input.Password)
	if err != nil {
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: "Account data error"})
		return
	}
	if !ok {
		loginLimiter.RecordFailure(ip)
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidCredentials")})
		return
	}

	loginLimiter.Reset(ip)
	role, _ := db.GetUserRole(input.Email)
	token := auth.CreateAPIToken(input.Email, role)

	sendJSONResponse(w, http.StatusOK, APIResponse{
		Status: "success",
		Data: map[string]any{
			"token": token,
			"email": input.Email,
			"role":  role,
		},
	})
}

func APIListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := getAPISession(r); !ok {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: "Unauthorized"})
		return
	}

	projects, err := db.GetProjects()
	if err != nil {
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: err.Error()})
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: projects})
}

func APIAddProjectHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	if _, ok := getAPISession(r); !ok {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: "Unauthorized"})
		return
	}

	var input struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Deadline    string `json:"deadline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Name == "" {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	id, err := db.AddProject(input.Name, input.Description, input.Deadline)
	if err != nil {
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: err.Error()})
		return
	}

	sendJSONResponse(w, http.StatusCreated, APIResponse{Status: "success", Data: map[string]any{"id": id}})
}

func APIUpdateProjectHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	if _, ok := getAPISession(r); !ok {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: "Unauthorized"})
		return
	}

	var input struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Deadline    string `json:"deadline"`
		Progress    int    `json:"progress"`
		Status      string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.ID == 0 {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	if err := db.UpdateProject(input.ID, input.Name, input.Description, input.Deadline, input.Progress, input.Status); err != nil {
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: err.Error()})
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success"})
}
