package orm

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/pescuma/submerge/lib/consoles"
	"github.com/pescuma/submerge/lib/model"
	"github.com/pescuma/submerge/lib/storages"
)

type gormStorage struct {
	mutex   sync.RWMutex
	db      *gorm.DB
	console consoles.Console

	sqlConfigs  map[string]*sqlConfig
	sqlMappings map[string]*sqlCommitMapping
	sqlBranches map[string]*sqlBranchMigration
}

func NewGormStorage(d gorm.Dialector, console consoles.Console) (storages.Storage, error) {
	l := logger.New(
		&consoleWriter{console},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(d, &gorm.Config{
		Logger: l,
	})
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases alive across calls.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&sqlConfig{},
		&sqlCommitMapping{},
		&sqlBranchMigration{},
	)
	if err != nil {
		return nil, err
	}

	return &gormStorage{
		db:          db,
		console:     console,
		sqlConfigs:  map[string]*sqlConfig{},
		sqlMappings: map[string]*sqlCommitMapping{},
		sqlBranches: map[string]*sqlBranchMigration{},
	}, nil
}

type consoleWriter struct {
	console consoles.Console
}

func (w *consoleWriter) Printf(format string, a ...any) {
	w.console.Printf(format+"\n", a...)
}

func (s *gormStorage) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}

	return db.Close()
}

func createCache[T sqlTable](rows []T) map[string]T {
	return lo.Associate(rows, func(i T) (string, T) {
		return i.CacheKey(), i
	})
}

func (s *gormStorage) session() *gorm.DB {
	now := time.Now().Local()
	return s.db.Session(&gorm.Session{
		NowFunc:         func() time.Time { return now },
		CreateBatchSize: 300,
	})
}

func (s *gormStorage) LoadMapping() (*model.RewriteMapping, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.console.Printf("Loading commit mapping...\n")

	var rows []*sqlCommitMapping
	err := s.db.Find(&rows).Error
	if err != nil {
		return nil, err
	}

	s.sqlMappings = createCache(rows)

	result := model.NewRewriteMapping()
	for _, row := range rows {
		m, err := row.ToModel()
		if err != nil {
			return nil, err
		}
		result.Add(m)
	}

	return result, nil
}

func (s *gormStorage) WriteMapping(mapping *model.RewriteMapping) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rows := prepareChanges(mapping.List(), newSqlCommitMapping, &s.sqlMappings)
	if len(rows) == 0 {
		return nil
	}

	s.console.Printf("Writing %v commit mappings...\n", len(rows))

	err := s.session().Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	if err != nil {
		return err
	}

	addList(&s.sqlMappings, rows)

	return nil
}

func (s *gormStorage) LoadBranchMigrations() (*model.BranchSet, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var rows []*sqlBranchMigration
	err := s.db.Order("name").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	s.sqlBranches = createCache(rows)

	result := model.NewBranchSet()
	for _, row := range rows {
		b, err := row.ToModel()
		if err != nil {
			return nil, err
		}
		result.Add(b)
	}

	return result, nil
}

func (s *gormStorage) WriteBranchMigrations(branches *model.BranchSet) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rows := prepareChanges(branches.List(), newSqlBranchMigration, &s.sqlBranches)
	if len(rows) == 0 {
		return nil
	}

	err := s.session().Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	if err != nil {
		return err
	}

	addList(&s.sqlBranches, rows)

	return nil
}

func (s *gormStorage) ClearResults() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("1 = 1").Delete(&sqlCommitMapping{}).Error
		if err != nil {
			return err
		}

		return tx.Where("1 = 1").Delete(&sqlBranchMigration{}).Error
	})
	if err != nil {
		return err
	}

	s.sqlMappings = map[string]*sqlCommitMapping{}
	s.sqlBranches = map[string]*sqlBranchMigration{}

	return nil
}

func (s *gormStorage) LoadConfig() (map[string]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var rows []*sqlConfig
	err := s.db.Find(&rows).Error
	if err != nil {
		return nil, err
	}

	s.sqlConfigs = createCache(rows)

	result := make(map[string]string, len(rows))
	for _, sc := range rows {
		result[sc.Key] = sc.Value
	}

	return result, nil
}

func (s *gormStorage) WriteConfig(config map[string]string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var rows []*sqlConfig
	for _, k := range lo.Keys(config) {
		sc := newSqlConfig(k, config[k])
		if prepareChange(&s.sqlConfigs, sc) {
			rows = append(rows, sc)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	err := s.session().Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	if err != nil {
		return err
	}

	addList(&s.sqlConfigs, rows)

	return nil
}

func addList[T sqlTable](target *map[string]T, toAdd []T) {
	for _, v := range toAdd {
		(*target)[v.CacheKey()] = v
	}
}

func prepareChanges[S sqlTable, M any](models []M, toSql func(M) S, cache *map[string]S) []S {
	var result []S
	for _, m := range models {
		s := toSql(m)
		if prepareChange(cache, s) {
			result = append(result, s)
		}
	}
	return result
}

// prepareChange returns true when n differs from what is already stored.
func prepareChange[T sqlTable](byID *map[string]T, n T) bool {
	o, ok := (*byID)[n.CacheKey()]
	if ok {
		ro := reflect.Indirect(reflect.ValueOf(o))
		rn := reflect.Indirect(reflect.ValueOf(n))

		rn.FieldByName("CreatedAt").Set(ro.FieldByName("CreatedAt"))
		rn.FieldByName("UpdatedAt").Set(ro.FieldByName("UpdatedAt"))
	}

	if ok && reflect.DeepEqual(n, o) {
		return false
	} else {
		(*byID)[n.CacheKey()] = n
		return true
	}
}

func compositeKey(ids ...string) string {
	return strings.Join(ids, "\n")
}
