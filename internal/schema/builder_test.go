package schema

import (
	"errors"
	"testing"

	"schema-migrator/internal/domain"
)

func TestCreateTable(t *testing.T) {
	op := CreateTable("todo_item", func(t *Table) {
		t.Increments()
		t.String("titre", 0).NotNull()
		t.String("description", 1000)
		t.Boolean("done").NotNull().Default("FALSE")
		t.Include(DefaultColumns()...)
		t.References("todo_list")
	})

	if op.Table != "todo_item" {
		t.Errorf("expected table todo_item, got %s", op.Table)
	}
	if len(op.Columns) != 8 {
		t.Fatalf("expected 8 columns, got %d", len(op.Columns))
	}

	id := op.Columns[0]
	if id.Name != "id" || id.Type.Kind != domain.TypeIncrements || id.Nullable {
		t.Errorf("unexpected id column: %+v", id)
	}

	titre := op.Columns[1]
	if titre.Nullable || titre.Type.Kind != domain.TypeString {
		t.Errorf("unexpected titre column: %+v", titre)
	}
	if desc := op.Columns[2]; desc.Type.Length != 1000 || !desc.Nullable {
		t.Errorf("unexpected description column: %+v", desc)
	}
	if done := op.Columns[3]; done.Default == nil || *done.Default != "FALSE" {
		t.Errorf("unexpected done column: %+v", done)
	}

	ref := op.Columns[7]
	if ref.Name != "todo_list_id" || ref.Type.Kind != domain.TypeUnsigned || !ref.Nullable {
		t.Errorf("unexpected reference column: %+v", ref)
	}
	if len(op.ForeignKeys) != 1 {
		t.Fatalf("expected 1 foreign key, got %d", len(op.ForeignKeys))
	}
	fk := op.ForeignKeys[0]
	want := domain.ForeignKey{Name: "fk_todo_item_todo_list_id", Column: "todo_list_id", RefTable: "todo_list", RefColumn: "id"}
	if fk != want {
		t.Errorf("foreign key = %+v, want %+v", fk, want)
	}
}

func TestStringDefaultLength(t *testing.T) {
	op := CreateTable("t", func(t *Table) {
		t.String("name", 0)
	})
	if got := op.Columns[0].Type.Length; got != 255 {
		t.Errorf("expected default length 255, got %d", got)
	}
}

func TestDefaultColumns(t *testing.T) {
	cols := DefaultColumns()
	names := []string{"created_at", "updated_at", "deleted_at"}
	if len(cols) != len(names) {
		t.Fatalf("expected %d columns, got %d", len(names), len(cols))
	}
	for i, col := range cols {
		if col.Name != names[i] {
			t.Errorf("expected %s, got %s", names[i], col.Name)
		}
		if col.Nullable {
			t.Errorf("%s should be NOT NULL", col.Name)
		}
		if col.Default == nil || *col.Default != Now {
			t.Errorf("%s should default to %s", col.Name, Now)
		}
	}

	// 呼び出しごとに独立したカラムを返すこと
	*cols[0].Default = "changed"
	if *DefaultColumns()[0].Default != Now {
		t.Error("DefaultColumns must not share default pointers")
	}
}

func TestIndexOn(t *testing.T) {
	op := IndexOn("item", true, "name", "category_id")
	if op.Index.Name != "idx_item_name_category_id" || !op.Index.Unique {
		t.Errorf("unexpected index: %+v", op.Index)
	}
}

func TestLiteral(t *testing.T) {
	if got := Literal("it's"); got != "'it''s'" {
		t.Errorf("Literal() = %s", got)
	}
}

func TestInverse(t *testing.T) {
	up := []domain.Operation{
		CreateTable("user", func(t *Table) { t.Increments() }),
		CreateTable("bill", func(t *Table) {
			t.Increments()
			t.References("user")
		}),
		domain.AddColumn{Table: "bill", Column: domain.Column{Name: "memo", Type: domain.ColumnType{Kind: domain.TypeText}}},
		IndexOn("bill", false, "memo"),
		domain.AddForeignKey{Table: "bill", ForeignKey: ForeignKeyName("bill", "owner_id", "user", "id")},
	}

	down, err := Inverse(up)
	if err != nil {
		t.Fatalf("Inverse failed: %v", err)
	}

	want := []domain.Operation{
		domain.DropForeignKey{Table: "bill", Name: "fk_bill_owner_id"},
		domain.DropIndex{Table: "bill", Name: "idx_bill_memo"},
		domain.DropColumn{Table: "bill", Column: "memo"},
		domain.DropTable{Table: "bill"},
		domain.DropTable{Table: "user"},
	}
	if len(down) != len(want) {
		t.Fatalf("expected %d operations, got %d", len(want), len(down))
	}
	for i := range want {
		if down[i] != want[i] {
			t.Errorf("down[%d] = %+v, want %+v", i, down[i], want[i])
		}
	}
}

func TestInverse_NotReversible(t *testing.T) {
	tests := []struct {
		name string
		op   domain.Operation
	}{
		{name: "drop table", op: domain.DropTable{Table: "t"}},
		{name: "set default", op: domain.SetDefault{Table: "t", Column: "c"}},
		{name: "exec sql", op: domain.ExecSQL{SQL: "DELETE FROM t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Inverse([]domain.Operation{tt.op})
			if !errors.Is(err, domain.ErrNotReversible) {
				t.Errorf("expected ErrNotReversible, got %v", err)
			}
		})
	}
}

func TestMustInverse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustInverse([]domain.Operation{domain.ExecSQL{SQL: "SELECT 1"}})
}
