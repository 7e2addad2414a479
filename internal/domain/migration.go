// Package domain はマイグレーションのドメインモデルとエラーを定義する。
package domain

import (
	"strings"
	"time"
	"unicode"
)

const (
	// TargetLatest は UpTo で最新のディスクリプタまで適用することを表す。
	TargetLatest = "latest"
	// TargetZero は DownTo で全てのディスクリプタを取り消すことを表す。
	TargetZero = "zero"
)

// Direction はマイグレーションの実行方向を表す。
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// DescriptorState はディスクリプタの実行状態を表す。
type DescriptorState string

const (
	StatePending   DescriptorState = "pending"
	StateApplying  DescriptorState = "applying"
	StateApplied   DescriptorState = "applied"
	StateFailed    DescriptorState = "failed"
	StateReverting DescriptorState = "reverting"
)

// Descriptor は一つのバージョン付きスキーマ変更を表す。作成後は変更しない。
type Descriptor struct {
	ID   string // 単調増加する一意なID（例: "20210502230816_initial"）
	Name string
	Up   []Operation
	Down []Operation
	// Irreversible は Down を意図的に持たないことを示す。Down の欠落とは区別される。
	Irreversible bool
	Source       string // 定義元（Goコードまたはファイルパス）
}

// Validate はディスクリプタの構成を検証する。
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return &MalformedDescriptorError{ID: d.ID, Reason: "empty id"}
	}
	if strings.IndexFunc(d.ID, unicode.IsSpace) >= 0 {
		return &MalformedDescriptorError{ID: d.ID, Reason: "id must not contain whitespace"}
	}
	if len(d.Up) == 0 {
		return &MalformedDescriptorError{ID: d.ID, Reason: "missing up operations"}
	}
	if d.Irreversible && len(d.Down) > 0 {
		return &MalformedDescriptorError{ID: d.ID, Reason: "irreversible descriptor must not declare down operations"}
	}
	if !d.Irreversible && len(d.Down) == 0 {
		return &MalformedDescriptorError{ID: d.ID, Reason: "missing down operations (mark it irreversible explicitly)"}
	}
	return nil
}

// LedgerEntry は台帳の1行を表す。
type LedgerEntry struct {
	DescriptorID string
	AppliedAt    time.Time
}

// StatusEntry はレジストリと台帳を突き合わせた結果の1行を表す。
type StatusEntry struct {
	ID           string
	Name         string
	Applied      bool
	AppliedAt    *time.Time // 未適用の場合はnil
	Irreversible bool
	// Missing は台帳にあるがレジストリに存在しないことを示す。
	Missing bool
}

// DescriptorResult は1ディスクリプタの実行結果。
type DescriptorResult struct {
	ID       string
	State    DescriptorState
	Duration time.Duration
	Err      error
}

// Report は UpTo / DownTo の実行結果。
type Report struct {
	RunID     string
	Direction Direction
	Target    string
	Planned   []string // 実行対象として計算されたID（実行順）
	Results   []DescriptorResult
}

// Completed は成功したディスクリプタのIDを実行順に返す。
func (r *Report) Completed() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Err == nil {
			ids = append(ids, res.ID)
		}
	}
	return ids
}

// Failed は失敗したディスクリプタの結果を返す。失敗がなければnil。
func (r *Report) Failed() *DescriptorResult {
	for i := range r.Results {
		if r.Results[i].Err != nil {
			return &r.Results[i]
		}
	}
	return nil
}
