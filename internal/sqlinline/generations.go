package sqlinline

const QEnsureGenerations = `--sql 17c04b23-dd62-403c-9f61-1bd4969f2632
create table if not exists generations (
  id uuid primary key,
  surface_id text not null,
  user_id text not null,
  operation_name text not null,
  prompt text not null,
  aspect_ratio text not null,
  resolution text not null,
  sample_count int not null,
  status text not null default 'polling',
  attempts int not null default 0,
  outputs jsonb not null default '[]'::jsonb,
  error_message text,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);
`

const QInsertGeneration = `--sql 4e3da152-e94f-4b7b-b467-b4c65f42a085
insert into generations (id, surface_id, user_id, operation_name, prompt, aspect_ratio, resolution, sample_count, status)
values ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
returning created_at, updated_at;
`

const QUpdateGenerationProgress = `--sql cb58eb4f-4510-4bbe-9b34-37e072ed3e88
update generations
set attempts = $2,
    updated_at = now()
where id = $1::uuid
  and status = 'polling';
`

const QCompleteGeneration = `--sql 5f2b1bc7-bc17-4be6-bb91-1c9ed725a9b3
update generations
set status = $2,
    outputs = coalesce($3::jsonb, outputs),
    error_message = nullif($4, ''),
    updated_at = now()
where id = $1::uuid
  and status = 'polling';
`

const QGetGeneration = `--sql 2f771967-7648-4f6c-b5e5-0d23a69dc6b5
select id::text, surface_id, user_id, operation_name, prompt, aspect_ratio, resolution,
       sample_count, status, attempts, outputs, coalesce(error_message, ''), created_at, updated_at
from generations
where id = $1::uuid;
`

const QListPollingGenerations = `--sql d617b69f-f87f-4cd1-9619-db52da641174
select id::text, surface_id, user_id, operation_name, prompt, aspect_ratio, resolution,
       sample_count, status, attempts, outputs, coalesce(error_message, ''), created_at, updated_at
from generations
where status = 'polling'
order by created_at desc
limit $1;
`
