package utils

import (
	"net/http"
	"slices"

	"gameplace/globals"
	"gameplace/middleware"
)

func GetUserIDFromRequest(r *http.Request) string {
	requestingUserID, ok := r.Context().Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}

func IsAdminRequest(r *http.Request) bool {
	roles, _ := r.Context().Value(globals.RoleKey).([]string)
	return slices.Contains(roles, middleware.AdminRole)
}
