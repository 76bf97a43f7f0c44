package java_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/java"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec/toolexectest"
)

const service = `package demo;

import java.sql.*;

public class Service {
    public void run(Connection c, String id) throws Exception {
        if (id == null) {
            return;
        }
        for (int i = 0; i < 3; i++) {
            System.out.println(i);
        }
        try {
            c.createStatement().executeQuery("SELECT * FROM t WHERE id=" + id);
        } catch (Exception e) {
            e.printStackTrace();
        }
    }
}
`

const plain = `package demo;

public class Plain {
    int value;
}
`

func writeSources(t *testing.T) (string, []string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Service.java"), []byte(service), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Plain.java"), []byte(plain), 0o600))

	return dir, []string{"src/Plain.java", "src/Service.java"}
}

func fakeJar(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0o600))

	return path
}

func TestStyleWithoutCheckstyleJar(t *testing.T) {
	t.Parallel()

	dir, files := writeSources(t)
	fake := toolexectest.New()

	an := java.New(fake, java.Config{CheckstyleJar: "/nonexistent/checkstyle.jar"})
	result := an.Analyze(context.Background(), analysis.Style, dir, files)

	assert.InDelta(t, 5.0, result.Score, 1e-9)
	assert.Equal(t, []string{"Checkstyle JAR not found at /nonexistent/checkstyle.jar, skipping style analysis"}, result.Notes)
	assert.Empty(t, fake.Calls())
}

func TestStyleCountsCheckstyleErrors(t *testing.T) {
	t.Parallel()

	dir, files := writeSources(t)
	jar := fakeJar(t, "checkstyle.jar")

	fake := toolexectest.New().Handle("java", func(cmd toolexec.Command) toolexectest.Response {
		assert.Equal(t, jar, cmd.Args[1])

		config, err := os.ReadFile(cmd.Args[3])
		assert.NoError(t, err)
		assert.Contains(t, string(config), `<property name="severity" value="error"/>`)

		if toolexectest.LastArg(cmd) == "./src/Service.java" {
			return toolexectest.Response{Stdout: `Starting audit...
[ERROR] /work/src/Service.java:3:1: Using the '.*' form of import should be avoided - java.sql.*. [AvoidStarImport]
[ERROR] /work/src/Service.java:16:11: Empty catch block. [EmptyCatchBlock]
Audit done.
Checkstyle ends with 2 errors.
`, ExitCode: 2}
		}

		return toolexectest.Response{Stdout: "Starting audit...\nAudit done.\n"}
	})

	an := java.New(fake, java.Config{CheckstyleJar: jar, ConfigDir: t.TempDir()})
	result := an.Analyze(context.Background(), analysis.Style, dir, files)

	assert.InDelta(t, 9.0, result.Score, 1e-9)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "src/Service.java", result.Issues[0].File)
	assert.Equal(t, "AvoidStarImport", result.Issues[0].Rule)
	assert.Equal(t, 16, result.Issues[1].Line)
}

func TestParseCheckstyleLine(t *testing.T) {
	t.Parallel()

	issue := java.ParseCheckstyleLine("A.java", "[ERROR] /x/A.java:7: Missing a switch default. [MissingSwitchDefault]")
	assert.Equal(t, 7, issue.Line)
	assert.Zero(t, issue.Column)
	assert.Equal(t, "Missing a switch default.", issue.Message)
	assert.Equal(t, "A.java:7 - Missing a switch default. (MissingSwitchDefault)", issue.String())
}

func TestQualityWithoutPMD(t *testing.T) {
	t.Parallel()

	dir, files := writeSources(t)

	result := java.New(toolexectest.New(), java.Config{}).Analyze(context.Background(), analysis.Quality, dir, files)

	assert.InDelta(t, 5.0, result.Score, 1e-9)
	assert.Equal(t, []string{"PMD not found, skipping quality analysis"}, result.Notes)
}

func TestQualityCountsPMDViolations(t *testing.T) {
	t.Parallel()

	dir, files := writeSources(t)

	var fileList string

	fake := toolexectest.New().Handle("pmd", func(cmd toolexec.Command) toolexectest.Response {
		if cmd.Args[0] == "--version" {
			return toolexectest.Response{Stdout: "PMD 7.8.0\n"}
		}

		idx := 0
		for i, arg := range cmd.Args {
			if arg == "--file-list" {
				idx = i + 1
			}
		}

		data, err := os.ReadFile(cmd.Args[idx])
		assert.NoError(t, err)
		fileList = string(data)

		return toolexectest.Response{
			Stdout: dir + "/src/Service.java:6:\tSystemPrintln:\tUsage of System.out/err\n" +
				"src/Service.java:14:\tAvoidCatchingGenericException:\tAvoid catching generic exceptions such as Exception\n" +
				"src/Plain.java:4:\tUnusedPrivateField:\tAvoid unused private fields such as 'value'.\n",
			Stderr:   "[WARN] Progressbar rendering conflicts with reporting to STDOUT.\n",
			ExitCode: 4,
		}
	})

	an := java.New(fake, java.Config{ConfigDir: t.TempDir()})
	result := an.Analyze(context.Background(), analysis.Quality, dir, files)

	assert.Equal(t, "src/Plain.java\nsrc/Service.java\n", fileList)
	assert.InDelta(t, 8.5, result.Score, 1e-9)
	require.Len(t, result.Issues, 3)
	assert.Equal(t, "src/Service.java", result.Issues[0].File)
	assert.Equal(t, "SystemPrintln", result.Issues[0].Rule)
	assert.Equal(t, 14, result.Issues[1].Line)
}

func TestToolFailureExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		metric analysis.Metric
		setup  func(t *testing.T) (*toolexectest.Fake, java.Config)
		want   string
	}{
		{
			name:   "checkstyle rejects config",
			metric: analysis.Style,
			setup: func(t *testing.T) (*toolexectest.Fake, java.Config) {
				t.Helper()

				fake := toolexectest.New().Reply("java", toolexectest.Response{
					Stderr:   "com.puppycrawl.tools.checkstyle.api.CheckstyleException: unable to parse configuration stream\n",
					ExitCode: 254,
				})

				return fake, java.Config{CheckstyleJar: fakeJar(t, "checkstyle.jar"), ConfigDir: t.TempDir()}
			},
			want: "Error running checkstyle: tool failed: exit status 254: " +
				"com.puppycrawl.tools.checkstyle.api.CheckstyleException: unable to parse configuration stream",
		},
		{
			name:   "pmd cannot load ruleset",
			metric: analysis.Quality,
			setup: func(t *testing.T) (*toolexectest.Fake, java.Config) {
				t.Helper()

				fake := toolexectest.New().Handle("pmd", func(cmd toolexec.Command) toolexectest.Response {
					if cmd.Args[0] == "--version" {
						return toolexectest.Response{Stdout: "PMD 7.8.0\n"}
					}

					return toolexectest.Response{Stderr: "[ERROR] Cannot load ruleset\n", ExitCode: 1}
				})

				return fake, java.Config{ConfigDir: t.TempDir()}
			},
			want: "Error running pmd: tool failed: exit status 1: [ERROR] Cannot load ruleset",
		},
		{
			name:   "pmd usage error",
			metric: analysis.Quality,
			setup: func(t *testing.T) (*toolexectest.Fake, java.Config) {
				t.Helper()

				fake := toolexectest.New().Handle("pmd", func(cmd toolexec.Command) toolexectest.Response {
					if cmd.Args[0] == "--version" {
						return toolexectest.Response{Stdout: "PMD 7.8.0\n"}
					}

					return toolexectest.Response{Stdout: "Usage: pmd check [OPTIONS]\n", ExitCode: 2}
				})

				return fake, java.Config{ConfigDir: t.TempDir()}
			},
			want: "Error running pmd: tool failed: exit status 2: Usage: pmd check [OPTIONS]",
		},
		{
			name:   "spotbugs crash",
			metric: analysis.Security,
			setup: func(t *testing.T) (*toolexectest.Fake, java.Config) {
				t.Helper()

				fake := toolexectest.New().
					Reply("javac", toolexectest.Response{}).
					Reply("java", toolexectest.Response{Stderr: "Exception in thread \"main\"\n", ExitCode: 1})

				return fake, java.Config{SpotBugsJar: fakeJar(t, "spotbugs.jar"), ConfigDir: t.TempDir()}
			},
			want: "Error running spotbugs: tool failed: exit status 1: Exception in thread \"main\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir, files := writeSources(t)
			fake, cfg := tt.setup(t)

			result := java.New(fake, cfg).Analyze(context.Background(), tt.metric, dir, files)

			assert.Zero(t, result.Score)
			require.Len(t, result.Issues, 1)
			assert.Equal(t, tt.want, result.Issues[0].String())
		})
	}
}

func TestFileOperandsCannotBeOptions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dashed := []string{"--version.java", "-Dx.java"}

	for _, name := range dashed {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(plain), 0o600))
	}

	fake := toolexectest.New().
		Reply("java", toolexectest.Response{Stdout: "Starting audit...\nAudit done.\n"}).
		Reply("javac", toolexectest.Response{})

	cfg := java.Config{
		CheckstyleJar: fakeJar(t, "checkstyle.jar"),
		SpotBugsJar:   fakeJar(t, "spotbugs.jar"),
		ConfigDir:     t.TempDir(),
	}

	an := java.New(fake, cfg)
	an.Analyze(context.Background(), analysis.Style, dir, dashed)
	an.Analyze(context.Background(), analysis.Security, dir, dashed)

	var operands []string

	for _, call := range fake.Calls() {
		last := toolexectest.LastArg(call)
		if strings.HasSuffix(last, ".java") {
			operands = append(operands, last)
		}
	}

	// two checkstyle runs and two javac runs
	assert.ElementsMatch(t, []string{
		"./--version.java", "./-Dx.java",
		"./--version.java", "./-Dx.java",
	}, operands)
}

func TestEstimateComplexity(t *testing.T) {
	t.Parallel()

	est := java.EstimateComplexity(service)
	assert.Equal(t, 3, est.Statements)
	assert.Equal(t, 20, est.Lines)
	assert.InDelta(t, 15.0, est.PerHundredLines(), 1e-9)

	assert.Zero(t, java.EstimateComplexity(plain).Statements)
}

func TestComplexityScore(t *testing.T) {
	t.Parallel()

	dir, files := writeSources(t)

	result := java.New(toolexectest.New(), java.Config{}).Analyze(context.Background(), analysis.Complexity, dir, files)

	// 3 statements over 20 lines is 15 per hundred lines, halved.
	assert.InDelta(t, 2.5, result.Score, 1e-9)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "src/Service.java: Estimated complexity: 3 statements", result.Issues[0].String())
}

func TestComplexityNoBranches(t *testing.T) {
	t.Parallel()

	dir, _ := writeSources(t)

	result := java.New(toolexectest.New(), java.Config{}).
		Analyze(context.Background(), analysis.Complexity, dir, []string{"src/Plain.java"})

	assert.InDelta(t, 10.0, result.Score, 1e-9)
	assert.Equal(t, []string{"No complexity issues found"}, result.Notes)
}

func TestSecurityPatternScan(t *testing.T) {
	t.Parallel()

	dir, files := writeSources(t)

	result := java.New(toolexectest.New(), java.Config{SpotBugsJar: "/missing/spotbugs.jar"}).
		Analyze(context.Background(), analysis.Security, dir, files)

	require.NotEmpty(t, result.Notes)
	assert.Equal(t, "SpotBugs JAR not found at /missing/spotbugs.jar, using alternative security analysis", result.Notes[0])

	lines := make([]string, 0, len(result.Issues))
	for _, issue := range result.Issues {
		lines = append(lines, issue.String())
	}

	// executeQuery and createStatement both see the concatenation.
	assert.Equal(t, []string{
		"src/Service.java: Potential SQL injection (1 occurrences)",
		"src/Service.java: Potential SQL injection (1 occurrences)",
		"src/Service.java: Information leakage through stack traces (1 occurrences)",
		"src/Service.java: Debug information leakage (1 occurrences)",
	}, lines)
	assert.InDelta(t, 8.0, result.Score, 1e-9)
}

func TestSecurityPatternScanClean(t *testing.T) {
	t.Parallel()

	dir, _ := writeSources(t)

	result := java.New(toolexectest.New(), java.Config{}).
		Analyze(context.Background(), analysis.Security, dir, []string{"src/Plain.java"})

	assert.InDelta(t, 10.0, result.Score, 1e-9)
	assert.Contains(t, result.Notes, "No security issues found")
}

func TestSecuritySpotBugs(t *testing.T) {
	t.Parallel()

	dir, files := writeSources(t)
	jar := fakeJar(t, "spotbugs.jar")

	fake := toolexectest.New().
		Handle("javac", func(cmd toolexec.Command) toolexectest.Response {
			assert.Equal(t, "-d", cmd.Args[0])

			if strings.HasSuffix(toolexectest.LastArg(cmd), "Plain.java") {
				return toolexectest.Response{Stderr: "error: cannot find symbol\n", ExitCode: 1}
			}

			return toolexectest.Response{}
		}).
		Reply("java", toolexectest.Response{Stdout: `M S SQL_NONCONSTANT_STRING_PASSED_TO_EXECUTE: Service.run(Connection, String) passes a nonconstant String to an execute method on an SQL statement  At Service.java:[line 14]
L D DE_MIGHT_IGNORE: Service.run(Connection, String) might ignore java.lang.Exception  At Service.java:[line 15]
Warnings generated: 2
`})

	an := java.New(fake, java.Config{SpotBugsJar: jar, ConfigDir: t.TempDir()})
	result := an.Analyze(context.Background(), analysis.Security, dir, files)

	assert.Equal(t, "spotbugs", result.Tool)
	assert.InDelta(t, 9.0, result.Score, 1e-9)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "src/Service.java", result.Issues[0].File)
	assert.Equal(t, 14, result.Issues[0].Line)
	assert.Equal(t, "medium", result.Issues[0].Severity)
	assert.Equal(t, "DE_MIGHT_IGNORE", result.Issues[1].Rule)
}

func TestSecuritySpotBugsWithoutJavac(t *testing.T) {
	t.Parallel()

	dir, files := writeSources(t)
	jar := fakeJar(t, "spotbugs.jar")

	an := java.New(toolexectest.New(), java.Config{SpotBugsJar: jar, ConfigDir: t.TempDir()})
	result := an.Analyze(context.Background(), analysis.Security, dir, files)

	assert.Zero(t, result.Score)
	require.Len(t, result.Issues, 1)
	assert.True(t, strings.HasPrefix(result.Issues[0].String(), "Error running javac:"))
}

func TestParseBugLineIgnoresSummary(t *testing.T) {
	t.Parallel()

	_, ok := java.ParseBugLine("Warnings generated: 2", nil)
	assert.False(t, ok)
}
