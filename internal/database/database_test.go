package database

import (
	"testing"
)

func TestOpenMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"principals", "child_profiles", "invitations", "child_access", "quests", "quest_instances", "ledger_entries", "rewards"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}
}

func TestLedgerTriggers(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for _, trigger := range []string{"ledger_entries_no_update", "ledger_entries_no_delete"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'trigger' AND name = ?`, trigger).Scan(&name)
		if err != nil {
			t.Errorf("trigger %q missing: %v", trigger, err)
		}
	}

	if _, err := db.Exec(`INSERT INTO principals (auth_subject, email) VALUES ('p', 'p@example.com')`); err != nil {
		t.Fatalf("insert principal: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO child_profiles (owner_parent_id, display_name) VALUES (1, 'Kid')`); err != nil {
		t.Fatalf("insert child: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO ledger_entries (child_id, amount, source_type, source_id) VALUES (1, 10, 'adjustment', 'a1')`); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	if _, err := db.Exec(`UPDATE ledger_entries SET amount = 99 WHERE id = 1`); err == nil {
		t.Error("update of ledger entry succeeded, want error")
	}
	if _, err := db.Exec(`DELETE FROM ledger_entries WHERE id = 1`); err == nil {
		t.Error("delete of ledger entry succeeded, want error")
	}

	var amount int64
	if err := db.QueryRow(`SELECT amount FROM ledger_entries WHERE id = 1`).Scan(&amount); err != nil {
		t.Fatalf("select entry: %v", err)
	}
	if amount != 10 {
		t.Errorf("amount = %d, want 10", amount)
	}
}

func TestRedemptionSourceUnique(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO principals (auth_subject, email) VALUES ('p', 'p@example.com')`); err != nil {
		t.Fatalf("insert principal: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO child_profiles (owner_parent_id, display_name) VALUES (1, 'Kid')`); err != nil {
		t.Fatalf("insert child: %v", err)
	}

	const insert = `INSERT INTO ledger_entries (child_id, amount, source_type, source_id) VALUES (1, ?, ?, ?)`
	if _, err := db.Exec(insert, -5, "reward_redemption", "key-1"); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if _, err := db.Exec(insert, -5, "reward_redemption", "key-1"); err == nil {
		t.Error("second redemption with same source succeeded, want error")
	}
	// Negative adjustments may share a source id.
	if _, err := db.Exec(insert, -1, "adjustment", "adj"); err != nil {
		t.Fatalf("first adjustment: %v", err)
	}
	if _, err := db.Exec(insert, -1, "adjustment", "adj"); err != nil {
		t.Errorf("second adjustment: %v", err)
	}
}
