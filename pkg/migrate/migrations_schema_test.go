package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/mmn-engine/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestMemberNodesMigrationContainsConstraints(t *testing.T) {
	assertMigrationContains(t, "*_create_member_nodes.sql", []string{
		"CREATE TABLE IF NOT EXISTS member_nodes",
		"ux_member_nodes_parent_position ON member_nodes (parent_id, position)",
		"ux_member_nodes_tenant_root ON member_nodes (tenant_id) WHERE parent_id IS NULL",
		"CREATE TABLE IF NOT EXISTS member_genealogy",
		"PRIMARY KEY (member_id, ancestor_id)",
		"DROP TABLE IF EXISTS member_nodes",
	})
}

func TestCommissionsMigrationContainsIdempotencyIndex(t *testing.T) {
	assertMigrationContains(t, "*_create_commissions.sql", []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_commissions_idempotency",
		"(member_id, source_id, type, level, period_type, period_start, period_end, reference)",
		"CHECK (amount >= 0)",
		"DROP TABLE IF EXISTS commissions",
	})
}

func TestPayoutsMigrationContainsConstraints(t *testing.T) {
	assertMigrationContains(t, "*_create_payouts.sql", []string{
		"commission_ids uuid[] NOT NULL",
		"CHECK (net_amount = amount - fee)",
		"fk_commissions_payout",
		"DROP TABLE IF EXISTS payouts",
	})
}

func TestSaleEventsMigrationKeysReference(t *testing.T) {
	assertMigrationContains(t, "*_create_sale_events.sql", []string{
		"CREATE TABLE IF NOT EXISTS sale_events",
		"ux_sale_events_reference ON sale_events (tenant_id, reference)",
		"DROP TABLE IF EXISTS sale_events",
	})
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Rank Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_rank_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func assertMigrationContains(t *testing.T, pattern string, checks []string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %s", pattern)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
