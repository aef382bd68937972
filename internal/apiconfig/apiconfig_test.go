package apiconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenMissingUsesDefaults(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "api.json"), Config{APIURL: "https://x", Region: "EU", Enabled: true}, nil)
	got := s.Get()
	if got.APIURL != "https://x" || !got.Enabled || got.HasToken() {
		t.Fatalf("cfg=%+v", got)
	}
}

func TestOpenReadsBOMFileWithNulls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.json")
	body := "\xEF\xBB\xBF" + `{"api_url": "", "region": "NA", "enabled": true, "token": "tok", "nickname": null, "account_id": null}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := Open(path, Config{APIURL: "https://x", Region: "EU"}, nil).Get()
	if got.Token != "tok" || got.Region != "NA" || got.APIURL != "https://x" || got.AccountID != 0 {
		t.Fatalf("cfg=%+v", got)
	}
}

func TestUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "api.json")
	s := Open(path, Config{Enabled: true}, nil)
	if err := s.Update(func(c *Config) {
		c.Token = "abc"
		c.AccountID = 500123
		c.Nickname = "tanker"
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	again := Open(path, Config{}, nil).Get()
	if again.Token != "abc" || again.AccountID != 500123 || again.Nickname != "tanker" || !again.Enabled {
		t.Fatalf("reloaded=%+v", again)
	}
}
