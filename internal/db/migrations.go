package db

import (
	"fmt"

	"gorm.io/gorm"
)

// ActiveUnitIndex enforces that a (tool, serial number) pair has at most one
// ticket in an active status. The statement is portable between Postgres and
// SQLite.
const ActiveUnitIndex = `CREATE UNIQUE INDEX IF NOT EXISTS uq_as_tickets_active_unit
	ON as_tickets (tool_id, serial_number)
	WHERE status IN ('inbound', 'waiting', 'repaired');`

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'as_ticket_status') THEN
			CREATE TYPE as_ticket_status AS ENUM ('inbound', 'waiting', 'repaired', 'outsourced', 'disposed', 'shipped');
		ELSE
			IF NOT EXISTS (SELECT 1 FROM pg_enum WHERE enumlabel = 'outsourced' AND enumtypid = (SELECT oid FROM pg_type WHERE typname = 'as_ticket_status')) THEN
				ALTER TYPE as_ticket_status ADD VALUE 'outsourced';
			END IF;
			IF NOT EXISTS (SELECT 1 FROM pg_enum WHERE enumlabel = 'disposed' AND enumtypid = (SELECT oid FROM pg_type WHERE typname = 'as_ticket_status')) THEN
				ALTER TYPE as_ticket_status ADD VALUE 'disposed';
			END IF;
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS price_groups (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(100) NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS companies (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(200) NOT NULL,
		company_type VARCHAR(10) NOT NULL DEFAULT 'client' CHECK (company_type IN ('sales', 'client', 'both')),
		price_group_id UUID REFERENCES price_groups(id) ON DELETE SET NULL,
		region VARCHAR(100) NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS idx_companies_name ON companies (name);`,
	`CREATE TABLE IF NOT EXISTS brands (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(200) NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS tools (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		brand_id UUID NOT NULL REFERENCES brands(id) ON DELETE RESTRICT,
		model_name VARCHAR(200) NOT NULL,
		CONSTRAINT uq_tools_brand_model UNIQUE (brand_id, model_name)
	);`,
	`CREATE TABLE IF NOT EXISTS parts (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(200) NOT NULL,
		code VARCHAR(100) NOT NULL DEFAULT '',
		price BIGINT NOT NULL DEFAULT 0 CHECK (price >= 0),
		part_type VARCHAR(10) NOT NULL DEFAULT 'dedicated' CHECK (part_type IN ('dedicated', 'common'))
	);`,
	`CREATE INDEX IF NOT EXISTS idx_parts_name ON parts (name);`,
	`CREATE TABLE IF NOT EXISTS part_tools (
		part_id UUID NOT NULL REFERENCES parts(id) ON DELETE CASCADE,
		tool_id UUID NOT NULL REFERENCES tools(id) ON DELETE RESTRICT,
		PRIMARY KEY (part_id, tool_id)
	);`,
	`CREATE TABLE IF NOT EXISTS outsource_companies (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(200) NOT NULL,
		contact VARCHAR(200) NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS inbound_batches (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		inbound_date DATE NOT NULL,
		company_id UUID NOT NULL REFERENCES companies(id) ON DELETE RESTRICT,
		manager VARCHAR(100) NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_inbound_batches_inbound_date ON inbound_batches (inbound_date);`,
	`CREATE TABLE IF NOT EXISTS as_tickets (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		inbound_batch_id UUID REFERENCES inbound_batches(id) ON DELETE SET NULL,
		inbound_date DATE NOT NULL,
		company_id UUID NOT NULL REFERENCES companies(id) ON DELETE RESTRICT,
		manager VARCHAR(100) NOT NULL DEFAULT '',
		tool_id UUID NOT NULL REFERENCES tools(id) ON DELETE RESTRICT,
		serial_number VARCHAR(200) NOT NULL,
		symptom TEXT NOT NULL DEFAULT '',
		repair_content TEXT NOT NULL DEFAULT '',
		repair_cost BIGINT NOT NULL DEFAULT 0 CHECK (repair_cost >= 0),
		status as_ticket_status NOT NULL DEFAULT 'inbound',
		outsource_company_id UUID REFERENCES outsource_companies(id) ON DELETE SET NULL,
		outbound_date DATE,
		estimate_status BOOLEAN NOT NULL DEFAULT FALSE,
		tax_invoice BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns
			WHERE table_name = 'as_tickets' AND column_name = 'outsource_company_id') THEN
			ALTER TABLE as_tickets ADD COLUMN outsource_company_id UUID REFERENCES outsource_companies(id) ON DELETE SET NULL;
		END IF;
	END
	$$;`,
	`CREATE INDEX IF NOT EXISTS idx_as_tickets_status ON as_tickets (status);`,
	`CREATE INDEX IF NOT EXISTS idx_as_tickets_inbound_date ON as_tickets (inbound_date);`,
	`CREATE INDEX IF NOT EXISTS idx_as_tickets_company_id ON as_tickets (company_id);`,
	`CREATE INDEX IF NOT EXISTS idx_as_tickets_inbound_batch_id ON as_tickets (inbound_batch_id);`,
	`CREATE INDEX IF NOT EXISTS idx_as_tickets_unit ON as_tickets (tool_id, serial_number);`,
	ActiveUnitIndex,
	`CREATE TABLE IF NOT EXISTS as_ticket_parts (
		ticket_id UUID NOT NULL REFERENCES as_tickets(id) ON DELETE CASCADE,
		part_id UUID NOT NULL REFERENCES parts(id) ON DELETE RESTRICT,
		PRIMARY KEY (ticket_id, part_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_as_ticket_parts_part_id ON as_ticket_parts (part_id);`,
	`CREATE TABLE IF NOT EXISTS as_ticket_status_logs (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		ticket_id UUID NOT NULL REFERENCES as_tickets(id) ON DELETE CASCADE,
		from_status VARCHAR(10) NOT NULL,
		to_status VARCHAR(10) NOT NULL,
		actor VARCHAR(100) NOT NULL DEFAULT '',
		changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_as_ticket_status_logs_ticket_id ON as_ticket_status_logs (ticket_id, changed_at);`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
