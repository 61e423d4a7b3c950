package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LangJS, DetectLanguage("src/app.ts"))
	assert.Equal(t, LangJS, DetectLanguage("src/App.TSX"))
	assert.Equal(t, LangJS, DetectLanguage("lib/util.js"))
	assert.Equal(t, LangPython, DetectLanguage("scripts/run.py"))
	assert.Equal(t, LangUnknown, DetectLanguage("README.md"))
	assert.Equal(t, LangUnknown, DetectLanguage("Makefile"))
}

func TestExtractJS(t *testing.T) {
	src := []byte(`
import React from 'react';
import { api } from "./api";
import './styles.css';
import type { User } from '../types/user';
export { helper } from './helper';
export * from "./exports";

const lazy = import('./lazy');
const legacy = require("../legacy");
`)

	refs := Extract(src, "src/app.tsx")
	assert.Equal(t, []string{
		"react",
		"./api",
		"./styles.css",
		"../types/user",
		"./helper",
		"./exports",
		"./lazy",
		"../legacy",
	}, refs)
}

func TestExtractJSDedupes(t *testing.T) {
	src := []byte(`
import { a } from './mod';
import { b } from './mod';
`)
	assert.Equal(t, []string{"./mod"}, Extract(src, "src/x.ts"))
}

func TestExtractPython(t *testing.T) {
	src := []byte(`
import os
import json, sys
from .models import User
from ..shared.config import load
from typing import Any

def main():
    pass
`)

	refs := Extract(src, "app/main.py")
	assert.Equal(t, []string{
		"os",
		"json",
		"sys",
		".models",
		"..shared.config",
		"typing",
	}, refs)
}

func TestExtractUnsupported(t *testing.T) {
	assert.Nil(t, Extract([]byte("import x from 'y'"), "notes.txt"))
}
