// Package articles defines the nominal row type the caching engine passes
// between the store and the warehouse client, plus the projection into the
// public HTTP shape. The core never interprets Payload; it is an opaque
// blob carrying whatever entities/tone/themes fields the upstream GKG join
// produced.
package articles

import (
	"encoding/json"
	"time"
)

// ArticleRow is the core's nominal row type, replacing the dynamic
// dict-shaped rows the original pipeline passed around.
type ArticleRow struct {
	GKGRecordID string    `gorm:"column:gkg_record_id;primaryKey"`
	CountryCode string    `gorm:"column:country_code;index:idx_articles_country_date"`
	DateAdded   int64     `gorm:"column:date_added;index:idx_articles_country_date"`
	CreatedAt   time.Time `gorm:"column:created_at;index:idx_articles_created_at;autoCreateTime"`
	Payload     []byte    `gorm:"column:payload;type:jsonb"`
}

func (ArticleRow) TableName() string { return "articles" }

// View is the public JSON projection returned by the HTTP API.
type View struct {
	GKGRecordID string                 `json:"gkg_record_id"`
	CountryCode string                 `json:"country_code"`
	DateAdded   string                 `json:"date_added"`
	Fields      map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Fields alongside the fixed keys, so the opaque
// payload's top-level keys surface directly on the projection without the
// core ever needing to know their names.
func (v View) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(v.Fields)+3)
	for k, val := range v.Fields {
		out[k] = val
	}
	out["gkg_record_id"] = v.GKGRecordID
	out["country_code"] = v.CountryCode
	out["date_added"] = v.DateAdded
	return json.Marshal(out)
}

// Project converts stored rows into the public projection, in descending
// date_added order (the order the caller is expected to have queried in).
func Project(rows []ArticleRow, loc func(int64) string) []View {
	views := make([]View, 0, len(rows))
	for _, r := range rows {
		var fields map[string]interface{}
		if len(r.Payload) > 0 {
			// Best-effort: the payload is opaque to the core, so a malformed
			// blob degrades to an empty field set rather than an error.
			_ = json.Unmarshal(r.Payload, &fields)
		}
		views = append(views, View{
			GKGRecordID: r.GKGRecordID,
			CountryCode: r.CountryCode,
			DateAdded:   loc(r.DateAdded),
			Fields:      fields,
		})
	}
	return views
}
