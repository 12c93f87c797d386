// commands.go — подкоманды CLI поверх слоя хранения.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/goartstore/tmpshare/internal/config"
	"github.com/bigkaa/goartstore/tmpshare/internal/domain/model"
	"github.com/bigkaa/goartstore/tmpshare/internal/service"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/hasher"
	"github.com/bigkaa/goartstore/tmpshare/internal/storage/store"
)

// cliEnv — окружение выполнения подкоманды.
type cliEnv struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

// open настраивает логгер и открывает хранилище.
// Логи команд идут в stderr, чтобы не смешиваться с выводом.
func (env *cliEnv) open(logTo io.Writer) (*store.Store, *slog.Logger, error) {
	logger := config.SetupLogger(env.cfg, logTo)

	st, err := store.New(store.Config{
		Root:   env.cfg.DataDir,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}
	return st, logger, nil
}

// cmdAdd — tmpshare add FILE.
func cmdAdd(env *cliEnv, args []string) error {
	fs := newFlagSet(env, "add", "FILE")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	// Относительный путь — от текущей директории, а не от корня
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("не удалось определить путь %s: %w", fs.Arg(0), err)
	}

	// Без явного корня запись кладётся рядом с файлом
	if !env.cfg.DataDirSet {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %w", store.ErrNotFound, err)
		}
		env.cfg.DataDir = filepath.Dir(path)
	}

	st, _, err := env.open(env.stderr)
	if err != nil {
		return err
	}

	meta, err := st.Add(path)
	if err != nil {
		if errors.Is(err, store.ErrOutsideRoot) {
			return fmt.Errorf("%w\nукажите корень директорией файла: tmpshare -data-dir %s add %s",
				err, filepath.Dir(path), fs.Arg(0))
		}
		return err
	}
	fmt.Fprintln(env.stdout, meta.Hash)
	return nil
}

// cmdGet — tmpshare get HASH.
func cmdGet(env *cliEnv, args []string) error {
	fs := newFlagSet(env, "get", "HASH")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	st, _, err := env.open(env.stderr)
	if err != nil {
		return err
	}

	meta, err := st.GetMetadata(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, meta)
	return nil
}

// cmdList — tmpshare list.
func cmdList(env *cliEnv, args []string) error {
	fs := newFlagSet(env, "list", "")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return errUsage
	}

	st, _, err := env.open(env.stderr)
	if err != nil {
		return err
	}

	result, err := st.Scan()
	if err != nil {
		return err
	}
	for _, meta := range result.Items {
		fmt.Fprintln(env.stdout, meta)
	}
	if result.Skipped > 0 {
		fmt.Fprintf(env.stderr, "Пропущено некорректных записей: %d\n", result.Skipped)
	}
	return nil
}

// cmdCollect — tmpshare collect HASH...
func cmdCollect(env *cliEnv, args []string) error {
	fs := newFlagSet(env, "collect", "HASH...")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	st, _, err := env.open(env.stderr)
	if err != nil {
		return err
	}

	members := make([]*model.Metadata, 0, fs.NArg())
	for _, hash := range fs.Args() {
		if !hasher.IsValid(hash) {
			return fmt.Errorf("%w: некорректный отпечаток %q", store.ErrInvalidArgument, hash)
		}
		meta, err := st.ReadMetadata(st.MetadataPath(hash))
		if err != nil {
			return err
		}
		members = append(members, meta)
	}

	coll, err := st.AddCollection("", members)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, coll.Hash)
	return nil
}

// cmdCleanup — tmpshare cleanup [-days N].
func cmdCleanup(env *cliEnv, args []string) error {
	fs := newFlagSet(env, "cleanup", "[-days N]")
	days := fs.Int("days", env.cfg.RetentionDays, "удалить записи, созданные раньше чем N суток назад")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return errUsage
	}

	st, logger, err := env.open(env.stderr)
	if err != nil {
		return err
	}

	rs := service.NewRetentionService(st, env.cfg.RetentionDays, 0, logger)
	result, err := rs.RunOnce(*days)
	if result == nil {
		return err
	}

	fmt.Fprintf(env.stdout, "Проверено: %d\n", result.Checked)
	fmt.Fprintf(env.stdout, "Удалено записей: %d\n", result.MetadataDeleted)
	fmt.Fprintf(env.stdout, "Удалено файлов: %d\n", result.FilesDeleted)
	fmt.Fprintf(env.stdout, "Удалено коллекций: %d\n", result.CollectionsDeleted)
	if result.Malformed > 0 {
		fmt.Fprintf(env.stdout, "Некорректных записей: %d\n", result.Malformed)
	}
	if err != nil {
		return errors.Join(fmt.Errorf("очистка завершена с ошибками (%d)", result.Failed), err)
	}
	return nil
}
