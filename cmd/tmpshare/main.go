// Точка входа tmpshare — временного файлообменника с адресацией по содержимому.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bigkaa/goartstore/tmpshare/internal/config"
)

const usage = `Использование: tmpshare [-data-dir DIR] <команда> [ФЛАГИ...] [АРГУМЕНТЫ...]

Команды:
  add FILE          опубликовать файл, вывести отпечаток
  get HASH          показать запись и обновить дату доступа
  list              перечислить записи
  collect HASH...   создать коллекцию, вывести её идентификатор
  cleanup [-days N] удалить записи старше N суток
  serve [-address A] [-port P]
                    запустить HTTP-сервер

Корень хранилища — -data-dir или TS_DATA_DIR (по умолчанию текущая директория;
для add без явного корня — директория файла).
`

// errUsage — некорректный вызов; сообщение уже выведено.
var errUsage = errors.New("некорректные аргументы")

// command — обработчик подкоманды.
type command func(env *cliEnv, args []string) error

var commands = map[string]command{
	"add":     cmdAdd,
	"get":     cmdGet,
	"list":    cmdList,
	"collect": cmdCollect,
	"cleanup": cmdCleanup,
	"serve":   cmdServe,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run разбирает аргументы, выполняет команду и возвращает код выхода.
func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("tmpshare", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	dataDir := global.String("data-dir", "", "корень хранилища")
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(stdout, usage)
			return 0
		}
		fmt.Fprintf(stderr, "%v\n\n%s", err, usage)
		return 2
	}
	args = global.Args()

	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		fmt.Fprint(stdout, usage)
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Неизвестная команда %q\n\n%s", name, usage)
		return 2
	}

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Ошибка конфигурации: %v\n", err)
		return 1
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
		cfg.DataDirSet = true
	}

	env := &cliEnv{cfg: cfg, stdout: stdout, stderr: stderr}
	if err := cmd(env, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(stderr, "Ошибка: %v\n", err)
		return 1
	}
	return 0
}

// newFlagSet создаёт набор флагов подкоманды с выводом в stderr.
func newFlagSet(env *cliEnv, name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	fs.Usage = func() {
		fmt.Fprintf(env.stderr, "Использование: tmpshare %s %s\n", name, synopsis)
		var defaults strings.Builder
		fs.SetOutput(&defaults)
		fs.PrintDefaults()
		fs.SetOutput(env.stderr)
		if defaults.Len() > 0 {
			fmt.Fprintf(env.stderr, "\nФлаги:\n%s", defaults.String())
		}
	}
	return fs
}

// parseFlags разбирает флаги подкоманды; ошибки разбора — errUsage.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}
