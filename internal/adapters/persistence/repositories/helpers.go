package repositories

import "gorm.io/gorm"

type statusCount struct {
	Status string
	Count  int64
}

// countByStatus groups rows of the given model by status.
func countByStatus(db *gorm.DB, model interface{}) (map[string]int64, error) {
	var rows []statusCount
	err := db.Model(model).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
