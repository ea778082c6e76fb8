package repo

import "testing"

func TestParseSlug(t *testing.T) {
	owner, name, err := ParseSlug("espressif/esp-idf")
	if err != nil {
		t.Fatalf("ParseSlug: %v", err)
	}
	if owner != "espressif" || name != "esp-idf" {
		t.Errorf("got (%q, %q), want (espressif, esp-idf)", owner, name)
	}
}

func TestParseSlugInvalid(t *testing.T) {
	cases := []string{"", "noslash", "owner/", "/repo", "a/b/c"}
	for _, c := range cases {
		if _, _, err := ParseSlug(c); err == nil {
			t.Errorf("ParseSlug(%q) should have errored", c)
		}
	}
}

func TestSlugFromRemoteURLHTTPS(t *testing.T) {
	got, err := SlugFromRemoteURL("https://github.com/espressif/esp-idf.git")
	if err != nil {
		t.Fatalf("SlugFromRemoteURL: %v", err)
	}
	if got != "espressif/esp-idf" {
		t.Errorf("got %q, want espressif/esp-idf", got)
	}
}

func TestSlugFromRemoteURLSSH(t *testing.T) {
	got, err := SlugFromRemoteURL("git@github.com:espressif/esp-idf.git")
	if err != nil {
		t.Fatalf("SlugFromRemoteURL: %v", err)
	}
	if got != "espressif/esp-idf" {
		t.Errorf("got %q, want espressif/esp-idf", got)
	}
}

func TestSlugFromRemoteURLInvalid(t *testing.T) {
	if _, err := SlugFromRemoteURL("not-a-url"); err == nil {
		t.Fatal("expected error for unparseable remote url")
	}
}
