package auth

import "testing"

// IssueForTest lets external tests mint a token for an arbitrary subject.
func IssueForTest(t *testing.T, s *Service, userID string) string {
	t.Helper()
	token, _, err := s.signAccessToken(userID)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
