package storage

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/tubesort/tubesort/models"
	bolt "go.etcd.io/bbolt"
)

var (
	cookiesBucket  = []byte("cookies")
	settingsBucket = []byte("settings")
	profilesBucket = []byte("selector_profiles")
	sortRunsBucket = []byte("sort_runs")
	usersBucket    = []byte("users")
)

var settingsKey = []byte("default")

type BoltDB struct {
	db *bolt.DB
}

func NewBoltDB(dbPath string) (*BoltDB, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w (directory: %s)", dbPath, err, dir)
	}

	// 创建必要的bucket
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{cookiesBucket, settingsBucket, profilesBucket, sortRunsBucket, usersBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

// ============= Cookie 相关方法 =============

// SaveCookies 保存Cookie
func (b *BoltDB) SaveCookies(cookieStore *models.CookieStore) error {
	cookieStore.UpdatedAt = time.Now()
	if cookieStore.CreatedAt.IsZero() {
		cookieStore.CreatedAt = time.Now()
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(cookiesBucket)
		data, err := cookieStore.ToJSON()
		if err != nil {
			return err
		}
		return bucket.Put([]byte(cookieStore.ID), data)
	})
}

// GetCookies 获取Cookie
func (b *BoltDB) GetCookies(id string) (*models.CookieStore, error) {
	var cookieStore models.CookieStore
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(cookiesBucket)
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("cookies not found")
		}
		return cookieStore.FromJSON(data)
	})
	if err != nil {
		return nil, err
	}
	return &cookieStore, nil
}

// DeleteCookies 删除Cookie
func (b *BoltDB) DeleteCookies(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(cookiesBucket)
		return bucket.Delete([]byte(id))
	})
}

// ============= 设置相关方法 =============

// SaveSettings 保存用户默认设置
func (b *BoltDB) SaveSettings(settings *models.Settings) error {
	settings.UpdatedAt = time.Now()
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(settingsBucket)
		data, err := settings.ToJSON()
		if err != nil {
			return err
		}
		return bucket.Put(settingsKey, data)
	})
}

// GetSettings 获取用户默认设置，不存在时返回默认值
func (b *BoltDB) GetSettings() (*models.Settings, error) {
	var settings models.Settings
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(settingsBucket)
		data := bucket.Get(settingsKey)
		if data == nil {
			return nil
		}
		found = true
		return settings.FromJSON(data)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return models.DefaultSettings(), nil
	}
	return &settings, nil
}

// ============= 选择器配置相关方法 =============

// SaveSelectorProfile 保存选择器配置
func (b *BoltDB) SaveSelectorProfile(profile *models.SelectorProfile) error {
	profile.UpdatedAt = time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		data, err := profile.ToJSON()
		if err != nil {
			return err
		}
		return bucket.Put([]byte(profile.ID), data)
	})
}

// GetSelectorProfile 获取选择器配置
func (b *BoltDB) GetSelectorProfile(id string) (*models.SelectorProfile, error) {
	var profile models.SelectorProfile
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("selector profile not found")
		}
		return profile.FromJSON(data)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListSelectorProfiles 列出所有选择器配置
func (b *BoltDB) ListSelectorProfiles() ([]*models.SelectorProfile, error) {
	var profiles []*models.SelectorProfile
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var profile models.SelectorProfile
			if err := profile.FromJSON(v); err != nil {
				return err
			}
			profiles = append(profiles, &profile)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

// GetDefaultSelectorProfile 获取默认选择器配置
func (b *BoltDB) GetDefaultSelectorProfile() (*models.SelectorProfile, error) {
	profiles, err := b.ListSelectorProfiles()
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if p.IsDefault {
			return p, nil
		}
	}
	return nil, fmt.Errorf("default selector profile not found")
}

// DeleteSelectorProfile 删除选择器配置（默认配置不可删除）
func (b *BoltDB) DeleteSelectorProfile(id string) error {
	profile, err := b.GetSelectorProfile(id)
	if err != nil {
		return err
	}
	if profile.IsDefault {
		return fmt.Errorf("cannot delete the default selector profile")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		return bucket.Delete([]byte(id))
	})
}

// ============= 排序执行记录相关方法 =============

// SaveSortRun 保存排序执行记录
func (b *BoltDB) SaveSortRun(run *models.SortRun) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sortRunsBucket)
		data, err := run.ToJSON()
		if err != nil {
			return err
		}
		return bucket.Put([]byte(run.RunID), data)
	})
}

// GetSortRun 获取单条排序执行记录
func (b *BoltDB) GetSortRun(id string) (*models.SortRun, error) {
	var run models.SortRun
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sortRunsBucket)
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("sort run not found")
		}
		return run.FromJSON(data)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListSortRuns 列出所有排序执行记录，按开始时间倒序
func (b *BoltDB) ListSortRuns() ([]*models.SortRun, error) {
	var runs []*models.SortRun
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sortRunsBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var run models.SortRun
			if err := run.FromJSON(v); err != nil {
				return err
			}
			runs = append(runs, &run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

// ListUnfinishedSortRuns 列出所有未进入终止状态的执行记录（用于崩溃恢复）
func (b *BoltDB) ListUnfinishedSortRuns() ([]*models.SortRun, error) {
	runs, err := b.ListSortRuns()
	if err != nil {
		return nil, err
	}

	var unfinished []*models.SortRun
	for _, run := range runs {
		if !run.State.IsTerminal() {
			unfinished = append(unfinished, run)
		}
	}
	return unfinished, nil
}

// DeleteSortRun 删除排序执行记录
func (b *BoltDB) DeleteSortRun(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sortRunsBucket)
		return bucket.Delete([]byte(id))
	})
}

// ============= 用户相关方法 =============

// CreateUser 创建用户
func (b *BoltDB) CreateUser(user *models.User) error {
	user.UpdatedAt = time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		data, err := user.ToJSON()
		if err != nil {
			return err
		}
		return bucket.Put([]byte(user.ID), data)
	})
}

// GetUser 获取用户
func (b *BoltDB) GetUser(id string) (*models.User, error) {
	var user models.User
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user not found")
		}
		return user.FromJSON(data)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername 按用户名查找用户
func (b *BoltDB) GetUserByUsername(username string) (*models.User, error) {
	var found *models.User
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var user models.User
			if err := user.FromJSON(v); err != nil {
				return err
			}
			if user.Username == username {
				found = &user
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("user not found")
	}
	return found, nil
}

// ListUsers 列出所有用户
func (b *BoltDB) ListUsers() ([]*models.User, error) {
	var users []*models.User
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var user models.User
			if err := user.FromJSON(v); err != nil {
				return err
			}
			users = append(users, &user)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}
