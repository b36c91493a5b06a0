// Copyright 2022 The AmazeChain Authors
// This file is part of the AmazeChain library.
//
// The AmazeChain library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The AmazeChain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the AmazeChain library. If not, see <http://www.gnu.org/licenses/>.

package conf

// LoggerConfig sets the level of the console and the rotation of the json log file.
type LoggerConfig struct {
	// LogFile is the json log file under <datadir>/log. Empty disables it.
	LogFile string `json:"name" yaml:"name"`
	// Level is a logrus level name for both outputs. Empty means info.
	Level string `json:"level" yaml:"level"`

	// MaxSize rotates the file once it grows past this many megabytes.
	MaxSize int `json:"max_size" yaml:"max_size"`
	// MaxBackups is the number of rotated files kept, 0 keeps all of them.
	MaxBackups int `json:"max_count" yaml:"max_count"`
	// MaxAge drops rotated files older than this many days, 0 keeps them forever.
	MaxAge int `json:"max_day" yaml:"max_day"`
	// Compress gzips rotated files.
	Compress bool `json:"compress" yaml:"compress"`
}
