package classify

import (
	"time"

	"github.com/qmoi/selfheal/internal/types"
)

// DefaultRules is the built-in rule table, most specific first. A line that
// matches several rules is attributed to the first one.
func DefaultRules() []types.Rule {
	return []types.Rule{
		{
			Name:     "npm-peer-dependency",
			Category: types.CategoryDependency,
			Patterns: []string{
				`\bERESOLVE\b`,
				`could not resolve dependency`,
				`conflicting peer dependency`,
				`overriding peer dependency`,
				`peer dep(endency)? (conflict|missing)`,
			},
			Fixes: []types.FixStep{
				{Name: "reinstall with legacy peer deps", Run: "npm install --legacy-peer-deps", Timeout: 10 * time.Minute},
			},
		},
		{
			Name:     "npm-missing-version",
			Category: types.CategoryDependency,
			Patterns: []string{
				`npm (ERR!|error) code ETARGET`,
				`No matching version found for`,
			},
			Fixes: []types.FixStep{
				{Run: "npm cache clean --force", ContinueOnError: true},
				{Run: "rm -f package-lock.json"},
				{Run: "npm install", Timeout: 10 * time.Minute},
			},
		},
		{
			Name:     "module-not-found",
			Category: types.CategoryDependency,
			Patterns: []string{
				`Cannot find module ['"]`,
				`Module not found: (Error: )?Can't resolve`,
				`ERR_MODULE_NOT_FOUND`,
			},
			Fixes: []types.FixStep{
				{Run: "npm install", Timeout: 10 * time.Minute},
			},
		},
		{
			Name:     "heap-out-of-memory",
			Category: types.CategoryMemory,
			Severity: types.SeverityCritical,
			Patterns: []string{
				`JavaScript heap out of memory`,
				`FATAL ERROR: .*Allocation failed`,
				`\bENOMEM\b`,
				`out of memory`,
			},
			Fixes: []types.FixStep{
				{Name: "drop build caches", Run: "rm -rf .next/cache node_modules/.cache"},
			},
			Retryable: true,
		},
		{
			Name:     "network",
			Category: types.CategoryNetwork,
			Severity: types.SeverityWarning,
			Patterns: []string{
				`\b(ECONNREFUSED|ECONNRESET|ETIMEDOUT|EAI_AGAIN|ENOTFOUND)\b`,
				`socket hang up`,
				`network (error|timeout)`,
				`connection (refused|reset|failed)`,
				`(bad gateway|service unavailable|gateway time-?out)`,
				`rate limit(ed)? exceeded`,
			},
			Fixes: []types.FixStep{
				{Name: "reset npm registry", Run: "npm config set registry https://registry.npmjs.org/", ContinueOnError: true},
			},
			Retryable: true,
		},
		{
			Name:     "auth",
			Category: types.CategoryPermission,
			Severity: types.SeverityCritical,
			Patterns: []string{
				`Permission denied \(publickey\)`,
				`authentication failed`,
				`bad credentials`,
				`invalid (api )?token`,
				`\b401\b.*unauthorized`,
			},
		},
		{
			Name:     "permission",
			Category: types.CategoryPermission,
			Patterns: []string{
				`\bEACCES\b`,
				`\bEPERM\b`,
				`permission denied`,
				`access denied`,
			},
			Fixes: []types.FixStep{
				{Name: "restore owner permissions", Run: "chmod -R u+rwX ."},
			},
		},
		{
			Name:     "npm-generic",
			Category: types.CategoryDependency,
			Patterns: []string{
				`npm ERR!`,
				`^npm error\b`,
				`yarn error`,
				`ENOENT.*package\.json`,
			},
			Fixes: []types.FixStep{
				{Run: "npm cache clean --force", ContinueOnError: true},
				{Run: "npm install", Timeout: 10 * time.Minute},
			},
		},
		{
			Name:     "pip",
			Category: types.CategoryDependency,
			Patterns: []string{
				`requires pip`,
				`pip is too old`,
				`No matching distribution found`,
				`ModuleNotFoundError: No module named`,
			},
			Fixes: []types.FixStep{
				{Run: "python3 -m pip install --upgrade pip", ContinueOnError: true},
				{Run: "python3 -m pip install -r requirements.txt", Timeout: 10 * time.Minute},
			},
		},
		{
			Name:     "go-module",
			Category: types.CategoryDependency,
			Patterns: []string{
				`missing go\.sum entry`,
				`updates to go\.mod needed`,
				`no required module provides package`,
			},
			Fixes: []types.FixStep{
				{Run: "go mod tidy", Timeout: 5 * time.Minute},
			},
		},
		{
			Name:     "eslint",
			Category: types.CategoryLint,
			Severity: types.SeverityWarning,
			Patterns: []string{
				`✖ \d+ problems? \(\d+ errors?`,
				`\d+ problems? \(\d+ errors?, \d+ warnings?\)`,
				`ESLint.*(error|failed)`,
				`Parsing error:`,
			},
			Fixes: []types.FixStep{
				{Name: "eslint autofix", Run: "npx eslint . --fix"},
			},
		},
		{
			Name:     "prettier",
			Category: types.CategoryLint,
			Severity: types.SeverityWarning,
			Patterns: []string{
				`Code style issues found`,
				`prettier.*check failed`,
			},
			Fixes: []types.FixStep{
				{Name: "prettier write", Run: "npx prettier --write ."},
			},
		},
		{
			Name:     "typescript",
			Category: types.CategoryBuild,
			Patterns: []string{
				`error TS\d+:`,
				`Type error:`,
			},
		},
		{
			Name:     "build",
			Category: types.CategoryBuild,
			Patterns: []string{
				`Build failed`,
				`Failed to compile`,
				`Compilation (error|failed)`,
				`(webpack|babel).*error`,
				`\bELIFECYCLE\b`,
			},
			Fixes: []types.FixStep{
				{Name: "clear build output", Run: "rm -rf .next build dist node_modules/.cache"},
				{Name: "clean install", Run: "npm ci", Timeout: 10 * time.Minute},
			},
		},
		{
			Name:      "test",
			Category:  types.CategoryTest,
			Patterns:  []string{`^\s*FAIL\b`, `--- FAIL:`, `Tests?:\s+\d+ failed`, `\d+ failing\b`},
			Retryable: true,
		},
		{
			Name:     "git-index-lock",
			Category: types.CategoryGit,
			Patterns: []string{`index\.lock'?:? File exists`},
			Fixes: []types.FixStep{
				{Run: "rm -f .git/index.lock"},
			},
		},
		{
			Name:     "git-merge-conflict",
			Category: types.CategoryGit,
			Severity: types.SeverityCritical,
			Patterns: []string{
				`CONFLICT \(`,
				`Merge conflict in`,
				`fix conflicts and then commit`,
			},
		},
		{
			Name:     "git-push-rejected",
			Category: types.CategoryGit,
			Patterns: []string{
				`\[rejected\]`,
				`failed to push some refs`,
				`Updates were rejected`,
			},
			Fixes: []types.FixStep{
				{Run: "git pull --rebase --autostash"},
			},
		},
		{
			Name:     "git-fatal",
			Category: types.CategoryGit,
			Patterns: []string{`^fatal:`},
			Fixes: []types.FixStep{
				{Run: "git fetch --all --prune"},
			},
		},
		{
			Name:     "deployment",
			Category: types.CategoryDeployment,
			Patterns: []string{
				`Deployment failed`,
				`Command "(npm|yarn|pnpm) run \S+" exited with \d+`,
				`Build exited with code`,
				`(vercel|netlify).*error`,
			},
			Retryable: true,
		},
		{
			Name:      "timeout",
			Category:  types.CategoryTimeout,
			Severity:  types.SeverityWarning,
			Patterns:  []string{`timed? ?out\b`, `deadline exceeded`, `Timeout of \d+ms exceeded`},
			Retryable: true,
		},
	}
}
