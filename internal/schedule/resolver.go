// Package schedule は自然言語テキストからの予定開始時刻の解決を提供する。
// 曜日名・相対日キーワード・時刻トークンの優先順位付きルールと、
// フォールバックの自由文パーサー（olebedev/when）で構成される。
package schedule

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/olebedev/when/rules/ru"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

// EventDuration は作成されるイベントの固定長。本文から推測しない。
const EventDuration = time.Hour

// defaultHour は曜日名のみで時刻指定がない場合のデフォルト開始時刻（09:00）。
const defaultHour = 9

// timePattern は「15」「15:30」形式の時刻トークンにマッチする。
var timePattern = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\b`)

// weekdays は曜日名（ロシア語の語幹と英語）からtime.Weekdayへの対応表。
// ロシア語は格変化があるため語幹でマッチさせる（"пятницу" → "пятниц"）。
var weekdays = []struct {
	stem string
	day  time.Weekday
}{
	{"понедельник", time.Monday},
	{"вторник", time.Tuesday},
	{"сред", time.Wednesday},
	{"четверг", time.Thursday},
	{"пятниц", time.Friday},
	{"суббот", time.Saturday},
	{"воскресен", time.Sunday},
	{"monday", time.Monday},
	{"tuesday", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"thursday", time.Thursday},
	{"friday", time.Friday},
	{"saturday", time.Saturday},
	{"sunday", time.Sunday},
}

// Resolver は自然言語テキストを将来の予定開始時刻に解決する。
// 共有状態を持たず、複数goroutineから安全に利用できる。
type Resolver struct {
	loc    *time.Location
	parser *when.Parser
}

// NewResolver はResolverを生成する。
// locはデプロイメント全体で固定のタイムゾーン。ユーザーごとの設定は持たない。
func NewResolver(loc *time.Location) *Resolver {
	w := when.New(nil)
	w.Add(ru.All...)
	w.Add(en.All...)
	w.Add(common.All...)

	return &Resolver{
		loc:    loc,
		parser: w,
	}
}

// Resolve はテキストを予定開始時刻に解決する。
// ルールは優先順位順に適用され、最初にマッチしたルールが結果を決める:
//  1. 曜日名 → 次のその曜日（今日がその曜日なら7日後）。時刻トークンがなければ09:00
//  2. 相対日キーワード（сегодня/завтра/послезавтра等）→ 明示オフセット。時刻トークン必須
//  3. 時刻トークンのみ → 今日（まだ未来の場合）、そうでなければ明日
//  4. フォールバックの自由文パーサー（未来優先）
//
// 解決できない場合はUnparseableエラーを返す。
func (r *Resolver) Resolve(text string, now time.Time) (model.ResolvedSchedule, error) {
	now = now.In(r.loc)
	lower := strings.ToLower(text)

	tod, hasTime, err := extractTime(lower)
	if err != nil {
		return model.ResolvedSchedule{}, model.NewUnparseableError(text)
	}

	// 1. 曜日名
	if day, ok := matchWeekday(lower); ok {
		if !hasTime {
			tod = timeOfDay{hour: defaultHour}
		}
		start := r.nextWeekday(now, day, tod)
		return r.schedule(start), nil
	}

	// 2. 相対日キーワード
	if offset, ok := matchDayOffset(lower); ok {
		if !hasTime {
			return model.ResolvedSchedule{}, model.NewUnparseableError(text)
		}
		start := r.at(now.AddDate(0, 0, offset), tod)
		return r.schedule(start), nil
	}

	// 3. 時刻トークンのみ（未来優先: 過去ならば明日に繰り越す）
	if hasTime {
		start := r.at(now, tod)
		if !start.After(now) {
			start = start.AddDate(0, 0, 1)
		}
		return r.schedule(start), nil
	}

	// 4. フォールバック
	result, err := r.parser.Parse(text, now)
	if err != nil || result == nil {
		return model.ResolvedSchedule{}, model.NewUnparseableError(text)
	}
	start := result.Time.In(r.loc)
	if !start.After(now) {
		return model.ResolvedSchedule{}, model.NewUnparseableError(text)
	}
	return r.schedule(start), nil
}

// timeOfDay は抽出された時刻トークンを表す。
type timeOfDay struct {
	hour   int
	minute int
}

// extractTime はテキストから最初の時刻トークンを抽出する。
// トークンがない場合はhasTime=falseを返す。
// 値が範囲外（時23超、分59超）の場合はエラーを返す。ラップアラウンドはしない。
func extractTime(lower string) (timeOfDay, bool, error) {
	m := timePattern.FindStringSubmatch(lower)
	if m == nil {
		return timeOfDay{}, false, nil
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return timeOfDay{}, false, err
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil {
			return timeOfDay{}, false, err
		}
	}

	if hour > 23 || minute > 59 {
		return timeOfDay{}, false, errOutOfRange
	}

	return timeOfDay{hour: hour, minute: minute}, true, nil
}

var errOutOfRange = errors.New("time value out of range")

// matchWeekday はテキストに含まれる最初の曜日名を返す。
func matchWeekday(lower string) (time.Weekday, bool) {
	for _, w := range weekdays {
		if strings.Contains(lower, w.stem) {
			return w.day, true
		}
	}
	return 0, false
}

// matchDayOffset は相対日キーワードを日数オフセットに変換する。
// 「послезавтра」は「завтра」を含むため先に判定する。
func matchDayOffset(lower string) (int, bool) {
	switch {
	case strings.Contains(lower, "послезавтра"), strings.Contains(lower, "day after tomorrow"):
		return 2, true
	case strings.Contains(lower, "завтра"), strings.Contains(lower, "завтро"), strings.Contains(lower, "tomorrow"):
		return 1, true
	case strings.Contains(lower, "сегодня"), strings.Contains(lower, "today"):
		return 0, true
	}
	return 0, false
}

// nextWeekday はnowより厳密に後の、次のその曜日の指定時刻を返す。
// 今日がその曜日の場合は同日にせず、必ず7日後に繰り越す。
func (r *Resolver) nextWeekday(now time.Time, day time.Weekday, tod timeOfDay) time.Time {
	days := int(day-now.Weekday()+7) % 7
	if days == 0 {
		days = 7
	}
	return r.at(now.AddDate(0, 0, days), tod)
}

// at は指定日の指定時刻を返す。
func (r *Resolver) at(date time.Time, tod timeOfDay) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), tod.hour, tod.minute, 0, 0, r.loc)
}

func (r *Resolver) schedule(start time.Time) model.ResolvedSchedule {
	return model.ResolvedSchedule{
		Start:    start,
		Duration: EventDuration,
		Location: r.loc,
	}
}
