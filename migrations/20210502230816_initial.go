package migrations

import (
	"schema-migrator/internal/domain"
	"schema-migrator/internal/schema"
)

func init() {
	up := initialTables()
	register(domain.Descriptor{
		ID:   "20210502230816_initial",
		Name: "initial",
		Up:   up,
		// 参照元から先に削除されるよう、作成順の逆で削除する
		Down: schema.MustInverse(up),
	})
}

// initialTables は家計・共同生活アプリの初期テーブル群を作成順に返す。
// 参照先テーブルは参照元より前に作成する。
func initialTables() []domain.Operation {
	return []domain.Operation{
		schema.CreateTable(TableUser, func(t *schema.Table) {
			t.Increments()
			t.String("name", 0).NotNull()
			t.String("email", 254).NotNull()
			t.String("password", 127).NotNull()
			t.DateTime("last_login")
			t.Include(schema.DefaultColumns()...)
		}),
		schema.CreateTable(TableTag, func(t *schema.Table) {
			t.Increments()
			t.String("name", 0).NotNull()
			t.String("desc", 1000)
			t.Include(schema.DefaultColumns()...)
		}),
		schema.CreateTable(TableCategory, func(t *schema.Table) {
			t.Increments()
			t.String("name", 0).NotNull().Unique()
			t.Include(schema.DefaultColumns()...)
		}),
		schema.CreateTable(TablePool, func(t *schema.Table) {
			t.Increments()
			t.String("name", 0)
			t.DateTime("start_date").NotNull()
			t.DateTime("end_date").NotNull()
			t.Include(schema.DefaultColumns()...)
		}),
		schema.CreateTable(TableChatRoom, func(t *schema.Table) {
			t.Increments()
			t.String("theme", 0)
			t.Include(schema.DefaultColumns()...)
		}),
		schema.CreateTable(TableBill, func(t *schema.Table) {
			t.Increments()
			t.Float("cost")
			t.Include(schema.DefaultColumns()...)
			t.References(TableUser)
			t.References(TablePool)
		}),
		schema.CreateTable(TableTodoList, func(t *schema.Table) {
			t.Increments()
			t.String("titre", 0).NotNull()
			t.DateTime("deadline")
			t.Include(schema.DefaultColumns()...)
			t.References(TableUser)
			t.References(TablePool)
		}),
		schema.CreateTable(TableTodoItem, func(t *schema.Table) {
			t.Increments()
			t.String("titre", 0).NotNull()
			t.String("description", 1000)
			t.DateTime("deadline")
			t.Include(schema.DefaultColumns()...)
			t.References(TableTodoList)
			t.References(TableUser)
		}),
		schema.CreateTable(TableGrocery, func(t *schema.Table) {
			t.Increments()
			t.String("titre", 0)
			t.String("state", 0).NotNull()
			t.Include(schema.DefaultColumns()...)
			t.References(TableBill)
		}),
		schema.CreateTable(TableItem, func(t *schema.Table) {
			t.Increments()
			t.String("name", 0).NotNull()
			t.String("description", 1000)
			t.DateTime("purchased_date").NotNull()
			t.DateTime("expiration_date")
			t.DateTime("last_used")
			t.Include(schema.DefaultColumns()...)
			t.References(TableTag)
			t.References(TableCategory)
		}),
		schema.CreateTable(TableUserItem, func(t *schema.Table) {
			t.Increments()
			t.References(TableUser)
			t.References(TableItem)
		}),
		schema.CreateTable(TableGroceryItem, func(t *schema.Table) {
			t.Increments()
			t.References(TableGrocery)
			t.References(TableItem)
		}),
		schema.CreateTable(TableRoomUser, func(t *schema.Table) {
			t.Increments()
			t.References(TableUser)
			t.References(TableChatRoom)
		}),
		schema.CreateTable(TableMessage, func(t *schema.Table) {
			t.Increments()
			t.String("body", 0).NotNull()
			t.Boolean("received").NotNull()
			t.References(TableUser)
			t.References(TableChatRoom)
		}),
	}
}
