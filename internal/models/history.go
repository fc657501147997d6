package models

// HistoryModel is one billed, non-cached summarization. The orchestrator
// only ever inserts rows; owners and privileged roles may edit Summary and
// Tags or delete the row afterwards.
type HistoryModel struct {
	Base
	UserID       string      `json:"userId"                gorm:"type:char(36);index;not null"`
	Content      string      `json:"content"               gorm:"type:longtext;not null"`
	Summary      string      `json:"summary"               gorm:"type:longtext;not null"`
	Tags         StringArray `json:"tags"                  gorm:"type:text"`
	TotalWords   int         `json:"totalContentWordCount" gorm:"not null"`
	SummaryWords int         `json:"summaryWordCount"      gorm:"not null"`
	Reduction    int         `json:"reduction"             gorm:"not null"`
	SavedTime    int         `json:"reduceTime"            gorm:"not null"`
	Style        string      `json:"type"                  gorm:"type:varchar(32);not null"`
	Fingerprint  string      `json:"fingerprint"           gorm:"type:char(64);index"`
}

func (HistoryModel) TableName() string { return "histories" }
