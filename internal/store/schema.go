package store

// Well-known artist rows seeded by the initial migration
const (
	UnknownArtistID  = 1
	VariousArtistsID = 2
)

// Schema v1 - catalogue tables, full-text mirrors and maintenance
// triggers
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS settings (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  db_version INTEGER NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS devices (
  id_device INTEGER PRIMARY KEY AUTOINCREMENT,
  uuid TEXT UNIQUE NOT NULL COLLATE NOCASE,
  last_mountpoint TEXT NOT NULL DEFAULT '',
  is_removable INTEGER NOT NULL DEFAULT 0,
  is_present INTEGER NOT NULL DEFAULT 1
)`,

	`CREATE TABLE IF NOT EXISTS folders (
  id_folder INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL,
  parent_id INTEGER REFERENCES folders(id_folder) ON DELETE CASCADE,
  device_id INTEGER NOT NULL REFERENCES devices(id_device) ON DELETE CASCADE,
  is_blacklisted INTEGER NOT NULL DEFAULT 0,
  is_present INTEGER NOT NULL DEFAULT 1,
  UNIQUE(path, device_id)
)`,

	`CREATE TABLE IF NOT EXISTS media (
  id_media INTEGER PRIMARY KEY AUTOINCREMENT,
  type INTEGER NOT NULL DEFAULT 0,
  subtype INTEGER NOT NULL DEFAULT 0,
  title TEXT NOT NULL DEFAULT '',
  duration INTEGER NOT NULL DEFAULT 0,
  play_count INTEGER NOT NULL DEFAULT 0,
  last_played_date INTEGER,
  insertion_date INTEGER NOT NULL,
  release_date INTEGER,
  thumbnail TEXT NOT NULL DEFAULT '',
  is_favorite INTEGER NOT NULL DEFAULT 0,
  is_present INTEGER NOT NULL DEFAULT 1
)`,

	`CREATE TABLE IF NOT EXISTS files (
  id_file INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER REFERENCES media(id_media) ON DELETE CASCADE,
  mrl TEXT NOT NULL,
  type INTEGER NOT NULL DEFAULT 0,
  last_modification_date INTEGER NOT NULL DEFAULT 0,
  size INTEGER NOT NULL DEFAULT 0,
  parser_step INTEGER NOT NULL DEFAULT 0,
  retry_count INTEGER NOT NULL DEFAULT 0,
  folder_id INTEGER REFERENCES folders(id_folder) ON DELETE CASCADE,
  is_present INTEGER NOT NULL DEFAULT 1,
  UNIQUE(mrl, folder_id)
)`,

	`CREATE TABLE IF NOT EXISTS artists (
  id_artist INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE COLLATE NOCASE,
  short_bio TEXT NOT NULL DEFAULT '',
  artwork TEXT NOT NULL DEFAULT '',
  musicbrainz_id TEXT NOT NULL DEFAULT '',
  nb_albums INTEGER NOT NULL DEFAULT 0,
  nb_tracks INTEGER NOT NULL DEFAULT 0,
  is_present INTEGER NOT NULL DEFAULT 1
)`,

	`CREATE TABLE IF NOT EXISTS albums (
  id_album INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL COLLATE NOCASE,
  artist_id INTEGER REFERENCES artists(id_artist) ON DELETE SET NULL,
  release_year INTEGER,
  short_summary TEXT NOT NULL DEFAULT '',
  artwork TEXT NOT NULL DEFAULT '',
  nb_tracks INTEGER NOT NULL DEFAULT 0,
  duration INTEGER NOT NULL DEFAULT 0
)`,

	`CREATE TABLE IF NOT EXISTS genres (
  id_genre INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL COLLATE NOCASE
)`,

	`CREATE TABLE IF NOT EXISTS album_tracks (
  id_track INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER NOT NULL UNIQUE REFERENCES media(id_media) ON DELETE CASCADE,
  album_id INTEGER NOT NULL REFERENCES albums(id_album) ON DELETE CASCADE,
  artist_id INTEGER REFERENCES artists(id_artist) ON DELETE SET NULL,
  genre_id INTEGER REFERENCES genres(id_genre) ON DELETE SET NULL,
  track_number INTEGER NOT NULL DEFAULT 0,
  disc_number INTEGER NOT NULL DEFAULT 0
)`,

	`CREATE TABLE IF NOT EXISTS shows (
  id_show INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL COLLATE NOCASE,
  release_date INTEGER,
  short_summary TEXT NOT NULL DEFAULT '',
  artwork TEXT NOT NULL DEFAULT '',
  tvdb_id TEXT NOT NULL DEFAULT ''
)`,

	`CREATE TABLE IF NOT EXISTS show_episodes (
  id_episode INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER NOT NULL UNIQUE REFERENCES media(id_media) ON DELETE CASCADE,
  show_id INTEGER NOT NULL REFERENCES shows(id_show) ON DELETE CASCADE,
  episode_number INTEGER NOT NULL DEFAULT 0,
  season_number INTEGER NOT NULL DEFAULT 0,
  title TEXT NOT NULL DEFAULT '',
  short_summary TEXT NOT NULL DEFAULT ''
)`,

	`CREATE TABLE IF NOT EXISTS labels (
  id_label INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS label_media (
  label_id INTEGER NOT NULL REFERENCES labels(id_label) ON DELETE CASCADE,
  media_id INTEGER NOT NULL REFERENCES media(id_media) ON DELETE CASCADE,
  PRIMARY KEY (label_id, media_id)
)`,

	`CREATE TABLE IF NOT EXISTS playlists (
  id_playlist INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  creation_date INTEGER NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS playlist_media (
  playlist_id INTEGER NOT NULL REFERENCES playlists(id_playlist) ON DELETE CASCADE,
  media_id INTEGER NOT NULL REFERENCES media(id_media) ON DELETE CASCADE,
  position INTEGER,
  PRIMARY KEY (playlist_id, media_id)
)`,

	`CREATE TABLE IF NOT EXISTS entry_points (
  id_entry_point INTEGER PRIMARY KEY AUTOINCREMENT,
  mrl TEXT UNIQUE NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS audio_tracks (
  id_audio_track INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER NOT NULL REFERENCES media(id_media) ON DELETE CASCADE,
  codec TEXT NOT NULL DEFAULT '',
  bitrate INTEGER NOT NULL DEFAULT 0,
  samplerate INTEGER NOT NULL DEFAULT 0,
  nb_channels INTEGER NOT NULL DEFAULT 0,
  language TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT ''
)`,

	`CREATE TABLE IF NOT EXISTS video_tracks (
  id_video_track INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER NOT NULL REFERENCES media(id_media) ON DELETE CASCADE,
  codec TEXT NOT NULL DEFAULT '',
  width INTEGER NOT NULL DEFAULT 0,
  height INTEGER NOT NULL DEFAULT 0,
  fps REAL NOT NULL DEFAULT 0,
  language TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT ''
)`,

	// Full-text mirrors. Rowids track the base table primary keys.
	`CREATE VIRTUAL TABLE IF NOT EXISTS media_fts USING fts5(title)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS album_fts USING fts5(title)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS artist_fts USING fts5(name)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS genre_fts USING fts5(name)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS playlist_fts USING fts5(name)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS show_fts USING fts5(title)`,

	`CREATE TRIGGER IF NOT EXISTS media_fts_insert AFTER INSERT ON media BEGIN
  INSERT INTO media_fts(rowid, title) VALUES (new.id_media, new.title);
END`,
	`CREATE TRIGGER IF NOT EXISTS media_fts_update AFTER UPDATE OF title ON media BEGIN
  UPDATE media_fts SET title = new.title WHERE rowid = new.id_media;
END`,
	`CREATE TRIGGER IF NOT EXISTS media_fts_delete BEFORE DELETE ON media BEGIN
  DELETE FROM media_fts WHERE rowid = old.id_media;
END`,

	`CREATE TRIGGER IF NOT EXISTS album_fts_insert AFTER INSERT ON albums BEGIN
  INSERT INTO album_fts(rowid, title) VALUES (new.id_album, new.title);
END`,
	`CREATE TRIGGER IF NOT EXISTS album_fts_update AFTER UPDATE OF title ON albums BEGIN
  UPDATE album_fts SET title = new.title WHERE rowid = new.id_album;
END`,
	`CREATE TRIGGER IF NOT EXISTS album_fts_delete BEFORE DELETE ON albums BEGIN
  DELETE FROM album_fts WHERE rowid = old.id_album;
END`,

	`CREATE TRIGGER IF NOT EXISTS artist_fts_insert AFTER INSERT ON artists WHEN new.name IS NOT NULL BEGIN
  INSERT INTO artist_fts(rowid, name) VALUES (new.id_artist, new.name);
END`,
	`CREATE TRIGGER IF NOT EXISTS artist_fts_update AFTER UPDATE OF name ON artists WHEN new.name IS NOT NULL BEGIN
  UPDATE artist_fts SET name = new.name WHERE rowid = new.id_artist;
END`,
	`CREATE TRIGGER IF NOT EXISTS artist_fts_delete BEFORE DELETE ON artists BEGIN
  DELETE FROM artist_fts WHERE rowid = old.id_artist;
END`,

	`CREATE TRIGGER IF NOT EXISTS genre_fts_insert AFTER INSERT ON genres BEGIN
  INSERT INTO genre_fts(rowid, name) VALUES (new.id_genre, new.name);
END`,
	`CREATE TRIGGER IF NOT EXISTS genre_fts_update AFTER UPDATE OF name ON genres BEGIN
  UPDATE genre_fts SET name = new.name WHERE rowid = new.id_genre;
END`,
	`CREATE TRIGGER IF NOT EXISTS genre_fts_delete BEFORE DELETE ON genres BEGIN
  DELETE FROM genre_fts WHERE rowid = old.id_genre;
END`,

	`CREATE TRIGGER IF NOT EXISTS playlist_fts_insert AFTER INSERT ON playlists BEGIN
  INSERT INTO playlist_fts(rowid, name) VALUES (new.id_playlist, new.name);
END`,
	`CREATE TRIGGER IF NOT EXISTS playlist_fts_update AFTER UPDATE OF name ON playlists BEGIN
  UPDATE playlist_fts SET name = new.name WHERE rowid = new.id_playlist;
END`,
	`CREATE TRIGGER IF NOT EXISTS playlist_fts_delete BEFORE DELETE ON playlists BEGIN
  DELETE FROM playlist_fts WHERE rowid = old.id_playlist;
END`,

	`CREATE TRIGGER IF NOT EXISTS show_fts_insert AFTER INSERT ON shows BEGIN
  INSERT INTO show_fts(rowid, title) VALUES (new.id_show, new.title);
END`,
	`CREATE TRIGGER IF NOT EXISTS show_fts_update AFTER UPDATE OF title ON shows BEGIN
  UPDATE show_fts SET title = new.title WHERE rowid = new.id_show;
END`,
	`CREATE TRIGGER IF NOT EXISTS show_fts_delete BEFORE DELETE ON shows BEGIN
  DELETE FROM show_fts WHERE rowid = old.id_show;
END`,

	// Playlist position maintenance. An insert with NULL position lands
	// at the end; an insert with an explicit position shifts the rows at
	// or after it; a delete closes the gap. Reordering is expressed as
	// delete + insert so positions stay a dense 1..N.
	`CREATE TRIGGER IF NOT EXISTS playlist_append AFTER INSERT ON playlist_media
 WHEN new.position IS NULL BEGIN
  UPDATE playlist_media
  SET position = (SELECT COUNT(*) FROM playlist_media WHERE playlist_id = new.playlist_id)
  WHERE playlist_id = new.playlist_id AND media_id = new.media_id;
END`,
	`CREATE TRIGGER IF NOT EXISTS playlist_shift AFTER INSERT ON playlist_media
 WHEN new.position IS NOT NULL BEGIN
  UPDATE playlist_media SET position = position + 1
  WHERE playlist_id = new.playlist_id
    AND position >= new.position
    AND media_id != new.media_id;
END`,
	`CREATE TRIGGER IF NOT EXISTS playlist_compact AFTER DELETE ON playlist_media BEGIN
  UPDATE playlist_media SET position = position - 1
  WHERE playlist_id = old.playlist_id AND position > old.position;
END`,

	// Presence cascade: device -> folder -> file -> media. Requires
	// recursive triggers, enabled at connection open.
	`CREATE TRIGGER IF NOT EXISTS device_presence AFTER UPDATE OF is_present ON devices BEGIN
  UPDATE folders SET is_present = new.is_present WHERE device_id = new.id_device;
END`,
	`CREATE TRIGGER IF NOT EXISTS folder_presence AFTER UPDATE OF is_present ON folders BEGIN
  UPDATE files SET is_present = new.is_present WHERE folder_id = new.id_folder;
END`,
	`CREATE TRIGGER IF NOT EXISTS file_presence AFTER UPDATE OF is_present ON files
 WHEN new.media_id IS NOT NULL BEGIN
  UPDATE media SET is_present = (
    SELECT MIN(is_present) FROM files WHERE media_id = new.media_id
  ) WHERE id_media = new.media_id;
END`,

	// Synthetic artists. Unknown Artist collects tracks with no artist
	// tag; Various Artists credits multi-artist albums.
	`INSERT OR IGNORE INTO artists (id_artist, name) VALUES (1, 'Unknown Artist')`,
	`INSERT OR IGNORE INTO artists (id_artist, name) VALUES (2, 'Various Artists')`,
}

// Schema v2 - query indexes
var schemaV2 = []string{
	`CREATE INDEX IF NOT EXISTS folder_device_idx ON folders(device_id)`,
	`CREATE INDEX IF NOT EXISTS file_media_idx ON files(media_id)`,
	`CREATE INDEX IF NOT EXISTS file_folder_idx ON files(folder_id)`,
	`CREATE INDEX IF NOT EXISTS file_parser_step_idx ON files(parser_step)`,
	`CREATE INDEX IF NOT EXISTS album_artist_idx ON albums(artist_id)`,
	`CREATE INDEX IF NOT EXISTS track_album_idx ON album_tracks(album_id)`,
	`CREATE INDEX IF NOT EXISTS track_artist_idx ON album_tracks(artist_id)`,
	`CREATE INDEX IF NOT EXISTS track_genre_idx ON album_tracks(genre_id)`,
	`CREATE INDEX IF NOT EXISTS episode_show_idx ON show_episodes(show_id)`,
	`CREATE INDEX IF NOT EXISTS playlist_media_pos_idx ON playlist_media(playlist_id, position)`,
	`CREATE INDEX IF NOT EXISTS audio_track_media_idx ON audio_tracks(media_id)`,
	`CREATE INDEX IF NOT EXISTS video_track_media_idx ON video_tracks(media_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS track_position_idx
  ON album_tracks(album_id, disc_number, track_number)
  WHERE track_number > 0 AND disc_number > 0`,
}
