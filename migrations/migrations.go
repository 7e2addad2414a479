// Package migrations はアプリケーションのスキーマ変更をGoコードで定義する。
// 各ファイルの init で register を呼び、ディスクリプタを登録する。
package migrations

import (
	"slices"
	"sync"

	"schema-migrator/internal/domain"
	"schema-migrator/internal/registry"
)

// テーブル名
const (
	TableUser        = "user"
	TableTag         = "tag"
	TableCategory    = "category"
	TablePool        = "pool"
	TableChatRoom    = "chat_room"
	TableBill        = "bill"
	TableTodoList    = "todo_list"
	TableTodoItem    = "todo_item"
	TableGrocery     = "grocery"
	TableItem        = "item"
	TableUserItem    = "user_item"
	TableGroceryItem = "grocery_item"
	TableRoomUser    = "room_user"
	TableMessage     = "message"
)

var (
	mu         sync.Mutex
	registered []domain.Descriptor
)

func register(d domain.Descriptor) {
	mu.Lock()
	defer mu.Unlock()
	d.Source = "migrations/" + d.ID + ".go"
	registered = append(registered, d)
}

// All は登録済みのディスクリプタを返す。順序は保証しない（整列はレジストリが行う）。
func All() []domain.Descriptor {
	mu.Lock()
	defer mu.Unlock()
	return slices.Clone(registered)
}

// Source は登録済みディスクリプタをレジストリの供給元として返す。
func Source() registry.Source {
	return registry.SourceFunc(func() ([]domain.Descriptor, error) {
		return All(), nil
	})
}
