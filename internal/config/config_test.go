package config

import "testing"

func TestParseTalkGroupTowns(t *testing.T) {
	environ := []string{
		"TALK_GROUP_1234=Hamilton",
		"TALK_GROUP_5678=Fairfield Twp",
		"TALK_GROUPS_CSV=./talkgroups.csv",
		"TALK_GROUP_=empty",
		"TALK_GROUP_abc=NotNumeric",
		"PATH=/usr/bin",
	}
	towns := parseTalkGroupTowns(environ)
	if len(towns) != 2 {
		t.Fatalf("got %d towns, want 2: %v", len(towns), towns)
	}
	if towns["1234"] != "Hamilton" {
		t.Errorf("towns[1234] = %q, want Hamilton", towns["1234"])
	}
	if towns["5678"] != "Fairfield Twp" {
		t.Errorf("towns[5678] = %q, want %q", towns["5678"], "Fairfield Twp")
	}
}

func TestMapped(t *testing.T) {
	cfg := &Config{MappedTalkGroups: []string{"100", " 200", "300 "}}
	for _, tg := range []string{"100", "200"} {
		if !cfg.Mapped(tg) {
			t.Errorf("Mapped(%q) = false, want true", tg)
		}
	}
	if cfg.Mapped("999") {
		t.Error("Mapped(999) = true, want false")
	}
}
