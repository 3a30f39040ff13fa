package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/John-Robertt/lumiscrape/internal/app/run"
	"github.com/John-Robertt/lumiscrape/internal/config"
	"github.com/John-Robertt/lumiscrape/internal/domain"
	"github.com/John-Robertt/lumiscrape/internal/infra/fsx"
	"github.com/John-Robertt/lumiscrape/internal/infra/httpx"
	"github.com/John-Robertt/lumiscrape/internal/ledger"
	"github.com/John-Robertt/lumiscrape/internal/logging"
	"github.com/John-Robertt/lumiscrape/internal/probe"
	"github.com/John-Robertt/lumiscrape/internal/provider"
	"github.com/John-Robertt/lumiscrape/internal/provider/labels"
	"github.com/John-Robertt/lumiscrape/internal/provider/lumiere"
)

// newProber 可在测试中替换（避免依赖本机 ffprobe）。
var newProber = func(path string) provider.Prober { return probe.NewFFprobe(path) }

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	code := 0
	root := newRootCmd(stdout, stderr, &code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n用法：lumiscrape run --help\n", err)
		return 2
	}
	return code
}

// flagKeys 把 CLI flag 名映射到配置键；只有显式指定的 flag 才会覆盖配置。
var flagKeys = map[string]string{
	"base-url":          config.KeyBaseURL,
	"start":             config.KeyStart,
	"stop":              config.KeyStop,
	"delay":             config.KeyDelay,
	"save":              config.KeySave,
	"ledger":            config.KeyLedgerPath,
	"format":            config.KeyLedgerFormat,
	"dedup":             config.KeyLedgerDedup,
	"labels":            config.KeyLabels,
	"continue-on-error": config.KeyContinueOnError,
	"failed-ids":        config.KeyFailedIDs,
	"report":            config.KeyReport,
	"ffprobe":           config.KeyFFprobe,
	"timeout":           config.KeyTimeout,
	"proxy":             config.KeyProxyURL,
	"log-level":         config.KeyLogLevel,
	"log-format":        config.KeyLogFormat,
}

func newRootCmd(stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "lumiscrape",
		Short:         "按 ID 区间抓取 Lumiere 条目元数据并追加到本地 ledger",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	var configFile string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "顺序处理 [start, stop) 内的每个 ID",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			*exitCode = runRun(cmd.Flags(), configFile, stdout, stderr)
		},
	}

	f := runCmd.Flags()
	f.StringVar(&configFile, "config", "", "配置文件路径（默认读取 ./"+config.FileName+"，可选）")
	f.String("base-url", lumiere.DefaultBaseURL, "Lumiere 站点根地址")
	f.Int("start", 48028, "起始 ID（含）")
	f.Int("stop", 48029, "结束 ID（不含）")
	f.Duration("delay", 0, "处理结束后等待的时长（例如 200ms）")
	f.Bool("save", true, "是否写入 ledger 与 failed_ids；支持 --save=false")
	f.String("ledger", "films.csv", "ledger 路径（.db/.sqlite 推断为 sqlite）")
	f.String("format", "", "ledger 格式：csv|sqlite（默认按扩展名推断）")
	f.String("dedup", "history", "去重模式：history|batch")
	f.String("labels", "positional", "film_info 字段解析器：positional|keyed")
	f.Bool("continue-on-error", false, "非 not_found 的失败也继续处理后续 ID")
	f.String("failed-ids", "failed_ids.txt", "失败 ID 列表文件")
	f.String("report", "", "额外写入 RunReport JSON 的路径")
	f.String("ffprobe", "ffprobe", "ffprobe 可执行文件路径")
	f.Duration("timeout", 30*time.Second, "单个 HTTP 请求的总超时")
	f.String("proxy", "", "HTTP 代理 URL")
	f.String("log-level", "info", "日志级别：debug|info|warn|error")
	f.String("log-format", "auto", "日志格式：auto|console|json")

	root.AddCommand(runCmd)
	return root
}

// overrides 收集显式指定的 flag（Visit 只遍历 Changed 的 flag）。
// 值统一用字符串传给配置层，由 viper 做类型转换。
func overrides(fs *pflag.FlagSet) map[string]any {
	out := make(map[string]any, 4)
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			out[key] = f.Value.String()
		}
	})
	return out
}

func runRun(fs *pflag.FlagSet, configFile string, stdout, stderr io.Writer) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		ConfigFile: configFile,
		Overrides:  overrides(fs),
	})
	if err != nil {
		code := config.Code(err)
		if code == "" {
			code = domain.ErrCodeConfigInvalid
		}
		emitReport(stdout, stderr, reportForError(code, err), 0)
		return 1
	}

	logging.Setup(logging.Config{Level: eff.LogLevel, Format: eff.LogFormat}, stderr)

	parser, ok := labels.Builtin().Get(eff.Labels)
	if !ok {
		emitReport(stdout, stderr, reportForError(domain.ErrCodeConfigInvalid, fmt.Errorf("未知的 labels 解析器：%q", eff.Labels)), 0)
		return 1
	}
	client, err := httpx.NewClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		emitReport(stdout, stderr, reportForError(domain.ErrCodeConfigInvalid, fmt.Errorf("proxy.url 无效：%w", err)), 0)
		return 1
	}

	osFs := afero.NewOsFs()
	runID := uuid.NewString()
	var lw ledger.Writer
	if eff.Save {
		lw, err = ledger.Open(ledger.Options{
			Path:   eff.LedgerPath,
			Format: eff.LedgerFormat,
			Mode:   ledger.Mode(eff.Dedup),
			Fs:     osFs,
			RunID:  runID,
		})
		if err != nil {
			emitReport(stdout, stderr, reportForError(domain.ErrCodeConfigInvalid, err), 0)
			return 1
		}
	}

	deps := run.Deps{
		RunID:  runID,
		Source: lumiere.New(eff.BaseURL, parser),
		Client: client,
		Prober: newProber(eff.FFprobePath),
		Ledger: lw,
		Fs:     osFs,
	}

	progressW, interactive := pickProgressWriter(stdout, stderr)
	var (
		ui  *progressUI
		obs run.Observer
	)
	if interactive {
		ui = newProgressUI(progressW)
		obs = ui
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rr, runErr := run.Execute(ctx, eff, deps, obs)
	if ui != nil {
		ui.Close()
	}

	exit := 0
	if runErr != nil {
		exit = 1
	}
	if eff.ReportPath != "" {
		if err := writeReportFile(deps.Fs, eff.ReportPath, rr); err != nil {
			fmt.Fprintf(stderr, "写入 report 失败：%v\n", err)
			exit = 1
		}
	}
	emitReport(stdout, stderr, rr, eff.Delay)
	return exit
}

// emitReport 遵循 stdout 契约：
// - stdout 是终端：输出人类可读摘要，失败明细写 stderr
// - stdout 非终端：stdout 必须且仅输出一个 RunReport JSON（摘要走 stderr）
func emitReport(stdout, stderr io.Writer, rr domain.RunReport, delay time.Duration) {
	if logging.IsTTY(stdout) {
		writeSummary(stdout, rr, delay)
		writeFailures(stderr, rr)
		return
	}
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	writeSummary(stderr, rr, delay)
}

func writeSummary(w io.Writer, rr domain.RunReport, delay time.Duration) {
	if rr.Aborted {
		fmt.Fprintf(w, "已终止：%s：%s\n", rr.AbortCode, rr.AbortReason)
	}
	for _, line := range run.SummaryLines(rr, delay) {
		fmt.Fprintln(w, line)
	}
}

func writeFailures(w io.Writer, rr domain.RunReport) {
	for _, it := range rr.Items {
		if it.Status == domain.StatusOK {
			continue
		}
		fmt.Fprintf(w, "%s %s: %s\n", it.ID, it.ErrorCode, it.ErrorMsg)
	}
}

func reportForError(code string, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		StartedAt:   now,
		FinishedAt:  now,
		Aborted:     true,
		AbortCode:   code,
		AbortReason: err.Error(),
	}
	rr.Finalize()
	return rr
}

func writeReportFile(fs afero.Fs, path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(fs, path, b)
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if logging.IsTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if logging.IsTTY(stdout) {
		return stdout, true
	}
	return nil, false
}
