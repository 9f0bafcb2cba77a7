package postgres

//Schema creates every table the repository uses. It is idempotent.
const Schema = `
	CREATE TABLE IF NOT EXISTS videos (
		id                BIGSERIAL PRIMARY KEY,
		project_id        BIGINT NOT NULL DEFAULT 0,
		directory         TEXT NOT NULL,
		source_file       TEXT NOT NULL DEFAULT '',
		playable_file     TEXT NOT NULL DEFAULT '',
		fps               DOUBLE PRECISION NOT NULL DEFAULT 0,
		width             INT NOT NULL DEFAULT 0,
		height            INT NOT NULL DEFAULT 0,
		frame_count       INT NOT NULL DEFAULT 0,
		camera_position   INT NOT NULL DEFAULT 0,
		anchor_x          DOUBLE PRECISION NULL,
		anchor_y          DOUBLE PRECISION NULL,
		hint_timestamp_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		state             INT NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS map_points (
		id        BIGSERIAL PRIMARY KEY,
		video_id  BIGINT NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
		camera_x  DOUBLE PRECISION NOT NULL,
		camera_y  DOUBLE PRECISION NOT NULL,
		minimap_x DOUBLE PRECISION NOT NULL,
		minimap_y DOUBLE PRECISION NOT NULL,
		operator  BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS subsets (
		id         BIGSERIAL PRIMARY KEY,
		video_id   BIGINT NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
		from_frame INT NOT NULL,
		to_frame   INT NOT NULL,
		frames     JSONB NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS frames (
		video_id BIGINT NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
		frame_id INT NOT NULL,
		PRIMARY KEY (video_id, frame_id)
	);

	CREATE TABLE IF NOT EXISTS player_data (
		video_id    BIGINT NOT NULL,
		frame_id    INT NOT NULL,
		tracking_id INT NOT NULL,
		x           DOUBLE PRECISION NOT NULL,
		y           DOUBLE PRECISION NOT NULL,
		bbox        JSONB NOT NULL,
		class_id    INT NOT NULL,
		team_id     INT NULL,
		PRIMARY KEY (video_id, frame_id, tracking_id),
		FOREIGN KEY (video_id, frame_id) REFERENCES frames (video_id, frame_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS player_data_track_idx ON player_data (video_id, tracking_id, frame_id);

	CREATE TABLE IF NOT EXISTS datasets (
		video_id   BIGINT PRIMARY KEY REFERENCES videos (id) ON DELETE CASCADE,
		home       INT NOT NULL,
		away       INT NOT NULL,
		accuracy   DOUBLE PRECISION NOT NULL,
		precision  DOUBLE PRECISION NOT NULL,
		recall     DOUBLE PRECISION NOT NULL,
		f1         DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS player_aliases (
		video_id    BIGINT NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
		tracking_id INT NOT NULL,
		alias       TEXT NOT NULL,
		PRIMARY KEY (video_id, tracking_id)
	);
`

const (
	queryCreateVideo = `
		INSERT INTO videos (
			project_id,
			directory,
			source_file,
			playable_file,
			fps,
			width,
			height,
			frame_count,
			camera_position,
			anchor_x,
			anchor_y,
			hint_timestamp_ms,
			state
		) VALUES (
			:project_id,
			:directory,
			:source_file,
			:playable_file,
			:fps,
			:width,
			:height,
			:frame_count,
			:camera_position,
			:anchor_x,
			:anchor_y,
			:hint_timestamp_ms,
			:state
		) RETURNING id
	`

	queryGetVideo = `
		SELECT
			id,
			project_id,
			directory,
			source_file,
			playable_file,
			fps,
			width,
			height,
			frame_count,
			camera_position,
			anchor_x,
			anchor_y,
			hint_timestamp_ms,
			state,
			updated_at
		FROM videos
		WHERE id = :id
	`

	queryUpdateVideo = `
		UPDATE videos SET
			project_id = :project_id,
			directory = :directory,
			source_file = :source_file,
			playable_file = :playable_file,
			fps = :fps,
			width = :width,
			height = :height,
			frame_count = :frame_count,
			camera_position = :camera_position,
			anchor_x = :anchor_x,
			anchor_y = :anchor_y,
			hint_timestamp_ms = :hint_timestamp_ms,
			state = :state,
			updated_at = now()
		WHERE id = :id
	`

	querySetVideoState = `
		UPDATE videos SET state = :state, updated_at = now() WHERE id = :id
	`

	queryGetMapPoints = `
		SELECT id, video_id, camera_x, camera_y, minimap_x, minimap_y, operator
		FROM map_points
		WHERE video_id = :video_id
		ORDER BY id
	`

	queryDeleteMapPoints = `
		DELETE FROM map_points WHERE video_id = :video_id
	`

	queryInsertMapPoints = `
		INSERT INTO map_points (video_id, camera_x, camera_y, minimap_x, minimap_y, operator)
		VALUES (:video_id, :camera_x, :camera_y, :minimap_x, :minimap_y, :operator)
	`

	queryListSubsets = `
		SELECT id, video_id, from_frame, to_frame, frames
		FROM subsets
		WHERE video_id = :video_id
		ORDER BY from_frame, id
	`

	queryCreateSubset = `
		INSERT INTO subsets (video_id, from_frame, to_frame, frames)
		VALUES (:video_id, :from_frame, :to_frame, :frames)
		RETURNING id
	`

	queryUpdateSubset = `
		UPDATE subsets SET from_frame = :from_frame, to_frame = :to_frame, frames = :frames
		WHERE id = :id AND video_id = :video_id
	`

	queryDeleteSubset = `
		DELETE FROM subsets WHERE id = :id AND video_id = :video_id
	`

	queryInsertFrames = `
		INSERT INTO frames (video_id, frame_id)
		VALUES (:video_id, :frame_id)
		ON CONFLICT DO NOTHING
	`

	queryInsertPlayerData = `
		INSERT INTO player_data (video_id, frame_id, tracking_id, x, y, bbox, class_id, team_id)
		VALUES (:video_id, :frame_id, :tracking_id, :x, :y, :bbox, :class_id, :team_id)
	`

	queryRangeFrames = `
		SELECT frame_id
		FROM frames
		WHERE video_id = :video_id AND frame_id >= :from AND (:to < 0 OR frame_id < :to)
		ORDER BY frame_id
	`

	queryRangePlayerData = `
		SELECT video_id, frame_id, tracking_id, x, y, bbox, class_id, team_id
		FROM player_data
		WHERE video_id = :video_id AND frame_id >= :from AND (:to < 0 OR frame_id < :to)
		ORDER BY frame_id, tracking_id
	`

	queryCountFrames = `
		SELECT COUNT(*) FROM frames WHERE video_id = :video_id
	`

	queryDeleteFrames = `
		DELETE FROM frames WHERE video_id = :video_id
	`

	queryKillTracking = `
		DELETE FROM player_data
		WHERE video_id = :video_id AND tracking_id = :tracking_id AND frame_id >= :from
	`

	queryListTracks = `
		SELECT DISTINCT tracking_id FROM player_data WHERE video_id = :video_id ORDER BY tracking_id
	`

	queryUpsertDataset = `
		INSERT INTO datasets (video_id, home, away, accuracy, precision, recall, f1, updated_at)
		VALUES (:video_id, :home, :away, :accuracy, :precision, :recall, :f1, now())
		ON CONFLICT (video_id) DO UPDATE SET
			home = EXCLUDED.home,
			away = EXCLUDED.away,
			accuracy = EXCLUDED.accuracy,
			precision = EXCLUDED.precision,
			recall = EXCLUDED.recall,
			f1 = EXCLUDED.f1,
			updated_at = now()
	`

	queryGetDataset = `
		SELECT video_id, home, away, accuracy, precision, recall, f1, updated_at
		FROM datasets
		WHERE video_id = :video_id
	`

	queryListAliases = `
		SELECT video_id, tracking_id, alias
		FROM player_aliases
		WHERE video_id = :video_id
		ORDER BY tracking_id
	`

	queryUpsertAlias = `
		INSERT INTO player_aliases (video_id, tracking_id, alias)
		VALUES (:video_id, :tracking_id, :alias)
		ON CONFLICT (video_id, tracking_id) DO UPDATE SET alias = EXCLUDED.alias
	`

	queryDeleteAlias = `
		DELETE FROM player_aliases WHERE video_id = :video_id AND tracking_id = :tracking_id
	`
)
